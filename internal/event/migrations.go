package event

import (
	"context"

	"eventbooking/internal/dbsession"
)

// capacityGuardFunc and capacityGuardTrigger enforce seat capacity at the
// database layer: a seat transitioning into reserved or booked is rejected
// outright if doing so would push the event's non-available seat count
// over its capacity. The durable store's row locks already serialize
// writers against each other; this trigger is the backstop for any write
// path that reaches the seats table without going through one.
const capacityGuardFunc = `
CREATE OR REPLACE FUNCTION enforce_seat_capacity() RETURNS trigger AS $$
DECLARE
    event_capacity integer;
    taken integer;
BEGIN
    IF NEW.status NOT IN ('reserved', 'booked') THEN
        RETURN NEW;
    END IF;
    IF TG_OP = 'UPDATE' AND OLD.status IN ('reserved', 'booked') THEN
        RETURN NEW;
    END IF;

    SELECT capacity INTO event_capacity FROM events WHERE id = NEW.event_id;
    SELECT count(*) INTO taken FROM seats
        WHERE event_id = NEW.event_id AND status IN ('reserved', 'booked') AND id <> NEW.id;

    IF taken + 1 > event_capacity THEN
        RAISE EXCEPTION 'seat capacity exceeded for event %', NEW.event_id;
    END IF;
    RETURN NEW;
END;
$$ LANGUAGE plpgsql;
`

const capacityGuardTrigger = `
DROP TRIGGER IF EXISTS seats_capacity_guard ON seats;
CREATE TRIGGER seats_capacity_guard
    BEFORE INSERT OR UPDATE ON seats
    FOR EACH ROW
    EXECUTE FUNCTION enforce_seat_capacity();
`

// EnsureCapacityGuard installs the capacity-enforcing trigger described
// above. It is a no-op on SQLite, which has no PL/pgSQL and is only used
// in tests run single-writer under a row lock anyway; cmd/server/main.go
// runs this against Postgres right after AutoMigrate.
func (r *Repository) EnsureCapacityGuard(ctx context.Context) error {
	if r.session.Dialect() != dbsession.DialectPostgres {
		return nil
	}
	if err := r.session.Exec(ctx, capacityGuardFunc); err != nil {
		return err
	}
	return r.session.Exec(ctx, capacityGuardTrigger)
}
