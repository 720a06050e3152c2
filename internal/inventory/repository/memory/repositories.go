package memory

import (
	"context"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/tair/inventory-engine/internal/inventory/domain"
)

type inventoryRepository struct{ b backend }

func (r *inventoryRepository) Create(_ context.Context, record *domain.InventoryRecord) (err error) {
	r.b.with(func(st *state) {
		if _, ok := st.inventory[record.ProductID]; ok {
			err = domain.ErrInventoryExists
			return
		}
		st.inventory[record.ProductID] = *record
	})
	return err
}

func (r *inventoryRepository) FindByProductID(_ context.Context, productID string) (out *domain.InventoryRecord, err error) {
	r.b.with(func(st *state) {
		rec, ok := st.inventory[productID]
		if !ok {
			err = domain.ErrInventoryNotFound
			return
		}
		out = &rec
	})
	return out, err
}

func (r *inventoryRepository) FindAll(_ context.Context, limit, offset int) (out []domain.InventoryRecord, err error) {
	r.b.with(func(st *state) {
		all := make([]domain.InventoryRecord, 0, len(st.inventory))
		for _, rec := range st.inventory {
			all = append(all, rec)
		}
		sort.Slice(all, func(i, j int) bool { return all[i].ProductID < all[j].ProductID })
		out = page(all, limit, offset)
	})
	return out, err
}

func (r *inventoryRepository) CompareAndSwap(_ context.Context, record *domain.InventoryRecord, expectedVersion int64) (err error) {
	r.b.with(func(st *state) {
		current, ok := st.inventory[record.ProductID]
		if !ok {
			err = domain.ErrInventoryNotFound
			return
		}
		if current.Version != expectedVersion {
			err = domain.ErrVersionConflict
			return
		}
		// Same guard as the table CHECK constraints
		if cerr := record.CheckInvariant(); cerr != nil {
			err = cerr
			return
		}
		next := *record
		next.CreatedAt = current.CreatedAt
		next.LowStockThreshold = current.LowStockThreshold
		st.inventory[record.ProductID] = next
	})
	return err
}

func (r *inventoryRepository) UpdateThreshold(_ context.Context, productID string, threshold int) (err error) {
	r.b.with(func(st *state) {
		rec, ok := st.inventory[productID]
		if !ok {
			err = domain.ErrInventoryNotFound
			return
		}
		rec.LowStockThreshold = threshold
		rec.UpdatedAt = time.Now().UTC()
		st.inventory[productID] = rec
	})
	return err
}

type movementRepository struct{ b backend }

func (r *movementRepository) Append(_ context.Context, movement *domain.MovementRecord) (err error) {
	r.b.with(func(st *state) {
		list := st.movements[movement.ProductID]
		for _, m := range list {
			if m.LedgerVersion == movement.LedgerVersion || m.ID == movement.ID {
				err = domain.ErrVersionConflict
				return
			}
		}
		st.movements[movement.ProductID] = appendFresh(list, *movement)
	})
	return err
}

func (r *movementRepository) ListByProduct(_ context.Context, productID string, limit, offset int) (out []domain.MovementRecord, err error) {
	r.b.with(func(st *state) {
		list := slices.Clone(st.movements[productID])
		sort.SliceStable(list, func(i, j int) bool { return list[i].LedgerVersion < list[j].LedgerVersion })
		out = page(list, limit, offset)
	})
	return out, err
}

type reservationRepository struct{ b backend }

func (r *reservationRepository) Create(_ context.Context, reservation *domain.ReservationRecord) (err error) {
	r.b.with(func(st *state) {
		if _, ok := st.reservations[reservation.ID]; ok {
			err = domain.NewValidationError("reservation_id", "duplicate id")
			return
		}
		st.reservations[reservation.ID] = *reservation
	})
	return err
}

func (r *reservationRepository) FindByID(_ context.Context, id string) (out *domain.ReservationRecord, err error) {
	r.b.with(func(st *state) {
		res, ok := st.reservations[id]
		if !ok {
			err = domain.ErrReservationNotFound
			return
		}
		out = &res
	})
	return out, err
}

func (r *reservationRepository) Transition(_ context.Context, t domain.Transition) (changed bool, err error) {
	r.b.with(func(st *state) {
		res, ok := st.reservations[t.ReservationID]
		if !ok || res.State != domain.ReservationActive {
			return
		}
		if !t.ExpiredBefore.IsZero() && !res.ExpiresAt.Before(t.ExpiredBefore) {
			return
		}
		at := t.At
		res.State = t.To
		res.FinalizedAt = &at
		if t.Reason != "" {
			res.Reason = t.Reason
		}
		st.reservations[t.ReservationID] = res
		changed = true
	})
	return changed, err
}

func (r *reservationRepository) FindExpired(_ context.Context, now time.Time, limit int) (out []domain.ReservationRecord, err error) {
	r.b.with(func(st *state) {
		for _, res := range st.reservations {
			if res.State == domain.ReservationActive && res.ExpiresAt.Before(now) {
				out = append(out, res)
			}
		}
		sort.Slice(out, func(i, j int) bool {
			if out[i].ExpiresAt.Equal(out[j].ExpiresAt) {
				return strings.Compare(out[i].ID, out[j].ID) < 0
			}
			return out[i].ExpiresAt.Before(out[j].ExpiresAt)
		})
		if limit > 0 && len(out) > limit {
			out = out[:limit]
		}
	})
	return out, err
}

func (r *reservationRepository) SumActive(_ context.Context, productID string) (sum int, err error) {
	r.b.with(func(st *state) {
		for _, res := range st.reservations {
			if res.ProductID == productID && res.State == domain.ReservationActive {
				sum += res.Quantity
			}
		}
	})
	return sum, err
}

type adjustmentRepository struct{ b backend }

func (r *adjustmentRepository) Create(_ context.Context, adjustment *domain.AdjustmentRecord) (err error) {
	r.b.with(func(st *state) {
		st.adjustments[adjustment.ProductID] = appendFresh(st.adjustments[adjustment.ProductID], *adjustment)
	})
	return err
}

func (r *adjustmentRepository) ListByProduct(_ context.Context, productID string, limit, offset int) (out []domain.AdjustmentRecord, err error) {
	r.b.with(func(st *state) {
		out = page(st.adjustments[productID], limit, offset)
	})
	return out, err
}

type bulkJobRepository struct{ b backend }

func (r *bulkJobRepository) Create(_ context.Context, job *domain.BulkJob) (err error) {
	r.b.with(func(st *state) {
		st.jobs[job.ID] = job.Clone()
	})
	return err
}

func (r *bulkJobRepository) FindByID(_ context.Context, id string) (out *domain.BulkJob, err error) {
	r.b.with(func(st *state) {
		job, ok := st.jobs[id]
		if !ok {
			err = domain.ErrJobNotFound
			return
		}
		c := job.Clone()
		out = &c
	})
	return out, err
}

func (r *bulkJobRepository) FindStale(_ context.Context, updatedBefore time.Time, limit int) (out []domain.BulkJob, err error) {
	r.b.with(func(st *state) {
		for _, job := range st.jobs {
			if job.Status == domain.BulkRunning && job.UpdatedAt.Before(updatedBefore) {
				out = append(out, job.Clone())
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

func (r *bulkJobRepository) Update(_ context.Context, job *domain.BulkJob) (err error) {
	r.b.with(func(st *state) {
		current, ok := st.jobs[job.ID]
		if !ok {
			err = domain.ErrJobNotFound
			return
		}
		if current.Status.IsTerminal() {
			err = domain.ErrJobTerminal
			return
		}
		st.jobs[job.ID] = job.Clone()
	})
	return err
}
