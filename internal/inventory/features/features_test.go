package features

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cucumber/godog"

	"github.com/tair/inventory-engine/internal/inventory/adjustment"
	"github.com/tair/inventory-engine/internal/inventory/bulk"
	"github.com/tair/inventory-engine/internal/inventory/coordination"
	"github.com/tair/inventory-engine/internal/inventory/domain"
	"github.com/tair/inventory-engine/internal/inventory/ledger"
	"github.com/tair/inventory-engine/internal/inventory/repository/memory"
	"github.com/tair/inventory-engine/internal/inventory/reservation"
	"github.com/tair/inventory-engine/internal/inventory/sweeper"
)

const adminID = "admin-1"

type inventoryTestContext struct {
	ledger    *ledger.Ledger
	manager   *reservation.Manager
	processor *adjustment.Processor
	bulk      *bulk.Coordinator

	reservationID string
	releases      []*reservation.TransitionResult
	raceErrors    []error
	job           *domain.BulkJob
	err           error
}

func (c *inventoryTestContext) reset() {
	store := memory.NewStore()
	c.ledger = ledger.New(store, ledger.Config{MaxRetries: 10, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond})
	c.manager = reservation.NewManager(c.ledger, store, coordination.NewMemory(), reservation.DefaultConfig)
	c.processor = adjustment.NewProcessor(c.ledger)
	c.bulk = bulk.NewCoordinator(store.Repositories().BulkJobs(), c.processor, c.ledger, c.manager, coordination.NewMemory(), bulk.Config{ChunkSize: 2})
	c.reservationID = ""
	c.releases = nil
	c.raceErrors = nil
	c.job = nil
	c.err = nil
}

// Given steps

func (c *inventoryTestContext) productHasOnHand(productID string, onHand int) error {
	_, err := c.ledger.Initialize(context.Background(), ledger.InitializeParams{ProductID: productID, OnHand: onHand})
	return err
}

// When steps

func (c *inventoryTestContext) iReserve(qty int, productID string, minutes int) error {
	res, err := c.manager.Reserve(context.Background(), reservation.ReserveRequest{
		ProductID: productID,
		Quantity:  qty,
		TTL:       time.Duration(minutes) * time.Minute,
	})
	c.err = err
	if err == nil {
		c.reservationID = res.Reservation.ID
	}
	return nil
}

func (c *inventoryTestContext) iConfirmTheReservation() error {
	_, err := c.manager.Confirm(context.Background(), c.reservationID)
	return err
}

func (c *inventoryTestContext) iReleaseTheReservation() error {
	res, err := c.manager.Release(context.Background(), c.reservationID, "customer abandoned cart")
	if err != nil {
		return err
	}
	c.releases = append(c.releases, res)
	return nil
}

func (c *inventoryTestContext) twoShoppersConcurrentlyReserve(qty int, productID string) error {
	var wg sync.WaitGroup
	var mu sync.Mutex
	start := make(chan struct{})
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := c.manager.Reserve(context.Background(), reservation.ReserveRequest{ProductID: productID, Quantity: qty})
			mu.Lock()
			c.raceErrors = append(c.raceErrors, err)
			mu.Unlock()
		}()
	}
	close(start)
	wg.Wait()
	return nil
}

func (c *inventoryTestContext) theDeadlinePassesAndTheSweeperRuns() error {
	later := func() time.Time { return time.Now().UTC().Add(time.Hour) }
	s := sweeper.New(c.manager, nil, sweeper.DefaultConfig, later)
	result, err := s.RunOnce(context.Background())
	if err != nil {
		return err
	}
	if result.Expired != 1 {
		return fmt.Errorf("sweeper expired %d reservations, want 1", result.Expired)
	}
	return nil
}

func (c *inventoryTestContext) iAdjust(productID string, qty int, adjustmentType, reason string) error {
	_, c.err = c.processor.Adjust(context.Background(), adjustment.Request{
		ProductID:      productID,
		AdjustmentType: domain.AdjustmentType(adjustmentType),
		Quantity:       qty,
		Reason:         reason,
		ActorID:        adminID,
	})
	if c.err != nil && !errors.Is(c.err, domain.ErrNegativeStock) {
		return c.err
	}
	return nil
}

func (c *inventoryTestContext) iSubmitABulkAdjustment(reason string, table *godog.Table) error {
	var items []domain.BulkItem
	for i, row := range table.Rows {
		if i == 0 {
			continue
		}
		qty, err := strconv.Atoi(row.Cells[2].Value)
		if err != nil {
			return err
		}
		items = append(items, domain.BulkItem{
			ProductID:      row.Cells[0].Value,
			AdjustmentType: domain.AdjustmentType(row.Cells[1].Value),
			Quantity:       qty,
		})
	}

	job, err := c.bulk.Execute(context.Background(), bulk.Request{
		Type:    domain.BulkAdjustment,
		Items:   items,
		Reason:  reason,
		ActorID: adminID,
	})
	if err != nil {
		return err
	}
	c.job = job
	return nil
}

// Then steps

func (c *inventoryTestContext) productHasLevel(productID string, onHand, reserved, available int) error {
	level, err := c.ledger.GetAvailable(context.Background(), productID)
	if err != nil {
		return err
	}
	if level.OnHand != onHand || level.Reserved != reserved || level.Available != available {
		return fmt.Errorf("%s is (%d,%d,%d), want (%d,%d,%d)", productID,
			level.OnHand, level.Reserved, level.Available, onHand, reserved, available)
	}
	return nil
}

func (c *inventoryTestContext) theRequestFailsWithInsufficientStock() error {
	if !errors.Is(c.err, domain.ErrInsufficientStock) {
		return fmt.Errorf("error = %v, want insufficient stock", c.err)
	}
	return nil
}

func (c *inventoryTestContext) theRequestFailsWithNegativeStock() error {
	if !errors.Is(c.err, domain.ErrNegativeStock) {
		return fmt.Errorf("error = %v, want negative stock", c.err)
	}
	return nil
}

func (c *inventoryTestContext) exactlyOneReservationSucceeds() error {
	var ok, insufficient int
	for _, err := range c.raceErrors {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, domain.ErrInsufficientStock):
			insufficient++
		default:
			return fmt.Errorf("unexpected error: %w", err)
		}
	}
	if ok != 1 || insufficient != 1 {
		return fmt.Errorf("%d succeeded and %d were refused, want 1 and 1", ok, insufficient)
	}
	return nil
}

func (c *inventoryTestContext) firstReleaseAppliedSecondTerminal() error {
	if len(c.releases) != 2 {
		return fmt.Errorf("got %d releases, want 2", len(c.releases))
	}
	if c.releases[0].AlreadyApplied() {
		return errors.New("first release was not applied")
	}
	if !c.releases[1].AlreadyApplied() || c.releases[1].Movement != nil {
		return errors.New("second release was not reported as already terminal")
	}
	return nil
}

func (c *inventoryTestContext) productHasMovements(productID string, count int) error {
	movements, err := c.ledger.Movements(context.Background(), productID, 0, 0)
	if err != nil {
		return err
	}
	if len(movements) != count {
		return fmt.Errorf("%s has %d movements, want %d", productID, len(movements), count)
	}
	return nil
}

func (c *inventoryTestContext) theReservationIs(state string) error {
	res, err := c.manager.Get(context.Background(), c.reservationID)
	if err != nil {
		return err
	}
	if string(res.State) != state {
		return fmt.Errorf("reservation is %s, want %s", res.State, state)
	}
	return nil
}

func (c *inventoryTestContext) theReplayAuditIsConsistent(productID string) error {
	report, err := c.ledger.Audit(context.Background(), productID)
	if err != nil {
		return err
	}
	if !report.Consistent {
		return fmt.Errorf("audit of %s found %v", productID, report.Discrepancies)
	}
	return nil
}

func (c *inventoryTestContext) theJobStatusIs(status string, succeeded, failed int) error {
	if c.job == nil {
		return errors.New("no job was submitted")
	}
	if string(c.job.Status) != status || c.job.Succeeded != succeeded || c.job.Failed != failed {
		return fmt.Errorf("job is %s with %d succeeded and %d failed, want %s with %d and %d",
			c.job.Status, c.job.Succeeded, c.job.Failed, status, succeeded, failed)
	}
	return nil
}

func (c *inventoryTestContext) itemFailedWith(position int, message string) error {
	item := c.job.Items[position-1]
	if item.Outcome != domain.ItemFailed {
		return fmt.Errorf("item %d is %s, want FAILED", position, item.Outcome)
	}
	if !strings.Contains(item.Error, message) {
		return fmt.Errorf("item %d error %q does not contain %q", position, item.Error, message)
	}
	return nil
}

func InitializeScenario(ctx *godog.ScenarioContext) {
	tc := &inventoryTestContext{}

	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		tc.reset()
		return ctx, nil
	})

	// Given steps
	ctx.Step(`^product "([^"]*)" has (\d+) on hand$`, tc.productHasOnHand)

	// When steps
	ctx.Step(`^I reserve (\d+) of "([^"]*)" for (\d+) minutes$`, tc.iReserve)
	ctx.Step(`^I confirm the reservation$`, tc.iConfirmTheReservation)
	ctx.Step(`^I release the reservation$`, tc.iReleaseTheReservation)
	ctx.Step(`^two shoppers concurrently reserve (\d+) of "([^"]*)"$`, tc.twoShoppersConcurrentlyReserve)
	ctx.Step(`^the reservation deadline passes and the sweeper runs$`, tc.theDeadlinePassesAndTheSweeperRuns)
	ctx.Step(`^I adjust "([^"]*)" by (-?\d+) as "([^"]*)" with reason "([^"]*)"$`, tc.iAdjust)
	ctx.Step(`^I submit a bulk adjustment with reason "([^"]*)":$`, tc.iSubmitABulkAdjustment)

	// Then steps
	ctx.Step(`^"([^"]*)" has (\d+) on hand, (\d+) reserved and (\d+) available$`, tc.productHasLevel)
	ctx.Step(`^the request fails with insufficient stock$`, tc.theRequestFailsWithInsufficientStock)
	ctx.Step(`^the request fails with negative stock$`, tc.theRequestFailsWithNegativeStock)
	ctx.Step(`^exactly one reservation succeeds and the other fails with insufficient stock$`, tc.exactlyOneReservationSucceeds)
	ctx.Step(`^the first release is applied and the second is already terminal$`, tc.firstReleaseAppliedSecondTerminal)
	ctx.Step(`^"([^"]*)" has (\d+) movements$`, tc.productHasMovements)
	ctx.Step(`^the reservation is (ACTIVE|CONFIRMED|RELEASED|EXPIRED)$`, tc.theReservationIs)
	ctx.Step(`^the replay audit of "([^"]*)" is consistent$`, tc.theReplayAuditIsConsistent)
	ctx.Step(`^the job status is "([^"]*)" with (\d+) succeeded and (\d+) failed$`, tc.theJobStatusIs)
	ctx.Step(`^item (\d+) failed with "([^"]*)"$`, tc.itemFailedWith)
}

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		Name:                "inventory",
		ScenarioInitializer: InitializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"inventory.feature"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
