package application

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/example/training-attendance/internal/geo"
)

// pointNorthOf displaces a point due north so the great-circle distance from
// the origin is the requested number of meters.
func pointNorthOf(origin geo.Point, meters float64) geo.Point {
	dLat := meters / geo.EarthRadiusMeters * 180 / math.Pi
	return geo.Point{Lat: origin.Lat + dLat, Lon: origin.Lon}
}

func locationPtr(p geo.Point) *geo.Point {
	return &p
}

func TestAdmissionService_Admit(t *testing.T) {
	now := time.Date(2025, time.June, 2, 9, 15, 0, 0, time.UTC)
	anchor := geo.Point{Lat: 22.0797, Lon: 82.1391}
	gpsSession := Session{
		Token:        "tok-gps",
		TrainingRef:  "training-1",
		Mode:         ModeGPS,
		RadiusMeters: 30,
		Anchor:       anchor,
		State:        StateActive,
	}

	newService := func(ledger AttendanceLedger) *AdmissionService {
		return NewAdmissionService(ledger, nil, sequenceTokens("rec-1", "rec-2"), func() time.Time { return now })
	}

	t.Run("requires a trainee identifier", func(t *testing.T) {
		svc := newService(&ledgerStub{})

		_, err := svc.Admit(context.Background(), AdmitParams{Session: gpsSession})

		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
	})

	t.Run("rejects ended sessions first", func(t *testing.T) {
		ended := gpsSession
		ended.State = StateEnded
		svc := newService(&ledgerStub{})

		_, err := svc.Admit(context.Background(), AdmitParams{
			Session:   ended,
			TraineeID: "trainee-1",
		})
		if !errors.Is(err, ErrSessionEnded) {
			t.Fatalf("expected ErrSessionEnded, got %v", err)
		}
	})

	t.Run("returns the stored record for repeat attempts", func(t *testing.T) {
		existing := AttendanceRecord{ID: "rec-0", SessionToken: "tok-gps", TraineeID: "trainee-1", MarkedAt: now.Add(-time.Minute)}
		ledger := &ledgerStub{findRecord: existing}
		svc := newService(ledger)

		// No location supplied: the existing-record check runs before any
		// mode rule, so the repeat still succeeds.
		result, err := svc.Admit(context.Background(), AdmitParams{
			Session:   gpsSession,
			TraineeID: "trainee-1",
		})
		if err != nil {
			t.Fatalf("Admit failed: %v", err)
		}
		if !result.AlreadyMarked || result.Record.ID != "rec-0" {
			t.Fatalf("expected existing record, got %#v", result)
		}
		if len(ledger.upserted) != 0 {
			t.Fatal("repeat attempt must not write a new record")
		}
	})

	t.Run("gps requires a location", func(t *testing.T) {
		svc := newService(&ledgerStub{})

		_, err := svc.Admit(context.Background(), AdmitParams{
			Session:   gpsSession,
			TraineeID: "trainee-1",
		})
		if !errors.Is(err, ErrLocationRequired) {
			t.Fatalf("expected ErrLocationRequired, got %v", err)
		}
	})

	t.Run("gps admits at the radius boundary", func(t *testing.T) {
		ledger := &ledgerStub{}
		svc := newService(ledger)

		result, err := svc.Admit(context.Background(), AdmitParams{
			Session:   gpsSession,
			TraineeID: "trainee-1",
			Location:  locationPtr(pointNorthOf(anchor, 29.9999)),
		})
		if err != nil {
			t.Fatalf("Admit failed: %v", err)
		}
		if result.AlreadyMarked {
			t.Fatal("expected a first-time admission")
		}
		if result.Record.Method != ModeGPS || !result.Record.MarkedAt.Equal(now) {
			t.Fatalf("unexpected record: %#v", result.Record)
		}
	})

	t.Run("gps rejects beyond the radius", func(t *testing.T) {
		ledger := &ledgerStub{}
		svc := newService(ledger)

		_, err := svc.Admit(context.Background(), AdmitParams{
			Session:   gpsSession,
			TraineeID: "trainee-1",
			Location:  locationPtr(pointNorthOf(anchor, 30.1)),
		})
		if !errors.Is(err, ErrOutOfRange) {
			t.Fatalf("expected ErrOutOfRange, got %v", err)
		}
		if len(ledger.upserted) != 0 {
			t.Fatal("rejected attempt must not write a record")
		}
	})

	t.Run("wifi matches the session hotspot", func(t *testing.T) {
		session := Session{Token: "tok-wifi", Mode: ModeWifi, HotspotID: "Camp-AP-7", State: StateActive}
		svc := newService(&ledgerStub{})

		result, err := svc.Admit(context.Background(), AdmitParams{
			Session:    session,
			TraineeID:  "trainee-1",
			DeviceMeta: map[string]string{"network_id": "camp-ap-7"},
		})
		if err != nil {
			t.Fatalf("Admit failed: %v", err)
		}
		if result.Record.Method != ModeWifi {
			t.Fatalf("unexpected record: %#v", result.Record)
		}
	})

	t.Run("wifi rejects other networks", func(t *testing.T) {
		session := Session{Token: "tok-wifi", Mode: ModeWifi, HotspotID: "Camp-AP-7", State: StateActive}
		svc := newService(&ledgerStub{})

		for _, meta := range []map[string]string{
			nil,
			{"network_id": "other-ap"},
			{"os": "android"},
		} {
			_, err := svc.Admit(context.Background(), AdmitParams{
				Session:    session,
				TraineeID:  "trainee-1",
				DeviceMeta: meta,
			})
			if !errors.Is(err, ErrNetworkMismatch) {
				t.Fatalf("expected ErrNetworkMismatch for %v, got %v", meta, err)
			}
		}
	})

	t.Run("manual admits unconditionally", func(t *testing.T) {
		session := Session{Token: "tok-manual", Mode: ModeManual, State: StateActive}
		svc := newService(&ledgerStub{})

		result, err := svc.Admit(context.Background(), AdmitParams{
			Session:   session,
			TraineeID: "trainee-1",
		})
		if err != nil {
			t.Fatalf("Admit failed: %v", err)
		}
		if result.Record.Method != ModeManual || result.AlreadyMarked {
			t.Fatalf("unexpected result: %#v", result)
		}
	})

	t.Run("losing an insert race reports the stored record", func(t *testing.T) {
		stored := AttendanceRecord{ID: "rec-racer", SessionToken: "tok-manual", TraineeID: "trainee-1", MarkedAt: now.Add(-time.Second)}
		ledger := &ledgerStub{upsertRecord: stored, upsertInserted: false}
		svc := newService(ledger)

		result, err := svc.Admit(context.Background(), AdmitParams{
			Session:   Session{Token: "tok-manual", Mode: ModeManual, State: StateActive},
			TraineeID: "trainee-1",
		})
		if err != nil {
			t.Fatalf("Admit failed: %v", err)
		}
		if !result.AlreadyMarked || result.Record.ID != "rec-racer" {
			t.Fatalf("expected the stored record, got %#v", result)
		}
	})
}
