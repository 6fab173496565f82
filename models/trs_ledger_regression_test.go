package models_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nens/trs_backend/config"
	"github.com/nens/trs_backend/middlewares"
	"github.com/nens/trs_backend/models"
	"github.com/nens/trs_backend/models/reports"
	"github.com/nens/trs_backend/utils"
	"github.com/shopspring/decimal"
)

func TestWeekLedgerEndToEnd(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	// Wire env for config.Connect* helpers.
	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "trs_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	// throwaway container, but start from an empty cache anyway
	if err := config.ClearRedis(ctx); err != nil {
		t.Fatalf("ClearRedis: %v", err)
	}

	if err := models.MigrateTable(); err != nil {
		t.Fatalf("MigrateTable: %v", err)
	}

	adminCtx := utils.SetIsAdminInContext(ctx, true)

	t.Run("year week generator is idempotent", func(t *testing.T) {
		created, err := models.GenerateYearWeeks(adminCtx, 2024, 2024)
		if err != nil {
			t.Fatalf("GenerateYearWeeks: %v", err)
		}
		if created != 52 {
			t.Fatalf("2024 must yield 52 weeks, got %d", created)
		}
		created, err = models.GenerateYearWeeks(adminCtx, 2024, 2024)
		if err != nil {
			t.Fatalf("GenerateYearWeeks rerun: %v", err)
		}
		if created != 0 {
			t.Fatalf("rerun must create nothing, got %d", created)
		}
		if _, err := models.GenerateYearWeeks(adminCtx, 2025, 2024); err == nil {
			t.Fatal("reversed year range must be rejected")
		}
	})

	var jan, jan2 *models.Person
	t.Run("slug collisions disambiguate deterministically", func(t *testing.T) {
		var err error
		jan, err = models.CreatePerson(adminCtx, &models.NewPerson{Name: "Jan Jansen", LoginName: "jjansen"})
		if err != nil {
			t.Fatalf("CreatePerson: %v", err)
		}
		if jan.Slug != "jan-jansen" {
			t.Fatalf("slug = %q, want jan-jansen", jan.Slug)
		}
		jan2, err = models.CreatePerson(adminCtx, &models.NewPerson{Name: "Jan Jansen"})
		if err != nil {
			t.Fatalf("CreatePerson (collision): %v", err)
		}
		if jan2.Slug != "jan-jansen-2" {
			t.Fatalf("second slug = %q, want jan-jansen-2", jan2.Slug)
		}
		if _, err := models.GetPersonBySlug(ctx, "jan-jansen"); err != nil {
			t.Fatalf("GetPersonBySlug: %v", err)
		}
	})

	t.Run("session middleware resolves the SSO token", func(t *testing.T) {
		if err := config.SetRedisValue("Token:test-session", "jjansen", time.Hour); err != nil {
			t.Fatalf("seed session token: %v", err)
		}
		gin.SetMode(gin.TestMode)
		r := gin.New()
		r.Use(middlewares.SessionMiddleware())
		r.GET("/probe", func(c *gin.Context) {
			id, _ := utils.GetPersonIdFromContext(c.Request.Context())
			c.JSON(http.StatusOK, gin.H{"person_id": id})
		})

		req := httptest.NewRequest(http.MethodGet, "/probe", nil)
		req.Header.Set("token", "test-session")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", w.Code)
		}
		if !strings.Contains(w.Body.String(), fmt.Sprintf(`"person_id":%d`, jan.ID)) {
			t.Fatalf("person not resolved: %s", w.Body.String())
		}

		// unknown tokens are rejected outright
		req = httptest.NewRequest(http.MethodGet, "/probe", nil)
		req.Header.Set("token", "bogus")
		w = httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("bogus token status = %d, want 401", w.Code)
		}
	})

	var project *models.Project
	t.Run("accepted projects freeze budget for ordinary users", func(t *testing.T) {
		var err error
		project, err = models.CreateProject(adminCtx, &models.NewProject{
			Code:           "P-2024-001",
			ContractAmount: decimal.RequireFromString("10000"),
			Reservation:    decimal.RequireFromString("1000"),
			Profit:         decimal.RequireFromString("500"),
			Principal:      "Acme BV",
		})
		if err != nil {
			t.Fatalf("CreateProject: %v", err)
		}
		if _, err := models.AcceptProject(adminCtx, project.ID); err != nil {
			t.Fatalf("AcceptProject: %v", err)
		}

		edited := &models.NewProject{
			Code:           project.Code,
			ContractAmount: decimal.RequireFromString("12000"),
			Reservation:    project.Reservation,
			Profit:         project.Profit,
			Principal:      project.Principal,
		}
		if _, err := models.UpdateProject(ctx, project.ID, edited); !errors.Is(err, utils.ErrorNotAuthorized) {
			t.Fatalf("ordinary edit of frozen budget: err = %v, want not authorized", err)
		}
		if _, err := models.UpdateProject(adminCtx, project.ID, edited); err != nil {
			t.Fatalf("administrative override must succeed: %v", err)
		}
		// restore the figures the budget report below relies on
		edited.ContractAmount = decimal.RequireFromString("10000")
		if _, err := models.UpdateProject(adminCtx, project.ID, edited); err != nil {
			t.Fatalf("restore contract amount: %v", err)
		}

		// non-budget edits stay open after acceptance
		edited.Description = "maintenance retainer"
		if _, err := models.UpdateProject(ctx, project.ID, edited); err != nil {
			t.Fatalf("non-budget edit must succeed for ordinary users: %v", err)
		}
	})

	week := func(w int) *models.YearWeek {
		yw, err := models.GetYearWeekByWeek(ctx, 2024, w)
		if err != nil {
			t.Fatalf("GetYearWeekByWeek(2024, %d): %v", w, err)
		}
		return yw
	}

	t.Run("work assignment upsert replaces the plan in place", func(t *testing.T) {
		first, err := models.UpsertWorkAssignment(adminCtx, &models.NewWorkAssignment{
			YearWeekId:   week(1).ID,
			AssignedToId: jan.ID,
			AssignedOnId: project.ID,
			Hours:        decimalPtr("40"),
			HourlyTariff: decimalPtr("100"),
		})
		if err != nil {
			t.Fatalf("UpsertWorkAssignment: %v", err)
		}
		second, err := models.UpsertWorkAssignment(adminCtx, &models.NewWorkAssignment{
			YearWeekId:   week(1).ID,
			AssignedToId: jan.ID,
			AssignedOnId: project.ID,
			Hours:        decimalPtr("38"),
			HourlyTariff: decimalPtr("100"),
		})
		if err != nil {
			t.Fatalf("UpsertWorkAssignment (edit): %v", err)
		}
		if first.ID != second.ID {
			t.Fatalf("edit created a second row (%d vs %d)", first.ID, second.ID)
		}
		count, err := utils.ResourceCountWhere[models.WorkAssignment](ctx,
			"assigned_to_id = ? AND assigned_on_id = ?", jan.ID, project.ID)
		if err != nil {
			t.Fatalf("count assignments: %v", err)
		}
		if count != 1 {
			t.Fatalf("want exactly one plan row, got %d", count)
		}
	})

	t.Run("effective capacity resolves latest change at or before week", func(t *testing.T) {
		if _, err := models.CreatePersonChange(adminCtx, &models.NewPersonChange{
			PersonId:     jan.ID,
			YearWeekId:   week(1).ID,
			HoursPerWeek: decimalPtr("32"),
		}); err != nil {
			t.Fatalf("CreatePersonChange (week 1): %v", err)
		}
		if _, err := models.CreatePersonChange(adminCtx, &models.NewPersonChange{
			PersonId:     jan.ID,
			YearWeekId:   week(10).ID,
			HoursPerWeek: decimalPtr("40"),
		}); err != nil {
			t.Fatalf("CreatePersonChange (week 10): %v", err)
		}

		got, err := models.EffectiveHoursPerWeek(ctx, jan.ID, 2024, 5)
		if err != nil {
			t.Fatalf("EffectiveHoursPerWeek(2024, 5): %v", err)
		}
		if got.StringFixed(2) != "32.00" {
			t.Fatalf("week 5 capacity = %s, want 32.00", got.StringFixed(2))
		}
		got, err = models.EffectiveHoursPerWeek(ctx, jan.ID, 2024, 15)
		if err != nil {
			t.Fatalf("EffectiveHoursPerWeek(2024, 15): %v", err)
		}
		if got.StringFixed(2) != "40.00" {
			t.Fatalf("week 15 capacity = %s, want 40.00", got.StringFixed(2))
		}
		got, err = models.EffectiveHoursPerWeek(ctx, jan.ID, 2023, 52)
		if err != nil {
			t.Fatalf("EffectiveHoursPerWeek(2023, 52): %v", err)
		}
		if !got.IsZero() {
			t.Fatalf("capacity before the first change = %s, want 0", got)
		}
	})

	t.Run("negative money and hours are rejected before persistence", func(t *testing.T) {
		if _, err := models.CreateBooking(adminCtx, &models.NewBooking{
			YearWeekId: week(5).ID,
			BookedById: jan.ID,
			BookedOnId: project.ID,
			Hours:      decimalPtr("-1"),
		}); !utils.IsValidationError(err) {
			t.Fatalf("negative booking hours: err = %v, want validation error", err)
		}
		if _, err := models.CreateThirdPartyEstimate(adminCtx, &models.NewThirdPartyEstimate{
			ProjectId: project.ID,
			Amount:    decimal.RequireFromString("-5"),
		}); !utils.IsValidationError(err) {
			t.Fatalf("negative estimate amount: err = %v, want validation error", err)
		}
	})

	t.Run("budget report matches the accounting formula", func(t *testing.T) {
		if _, err := models.CreateBooking(adminCtx, &models.NewBooking{
			YearWeekId: week(5).ID,
			BookedById: jan.ID,
			BookedOnId: project.ID,
			Hours:      decimalPtr("10"),
		}); err != nil {
			t.Fatalf("CreateBooking: %v", err)
		}

		report, err := reports.GetProjectBudgetReport(ctx, project.ID, 2024, 52)
		if err != nil {
			t.Fatalf("GetProjectBudgetReport: %v", err)
		}
		if report.PlannedCost.StringFixed(2) != "3800.00" {
			t.Fatalf("planned cost = %s, want 3800.00 (38h x 100)", report.PlannedCost.StringFixed(2))
		}
		if report.ActualCost.StringFixed(2) != "1000.00" {
			t.Fatalf("actual cost = %s, want 1000.00 (10h x effective tariff 100)", report.ActualCost.StringFixed(2))
		}
		if report.RemainingBudget.StringFixed(2) != "7500.00" {
			t.Fatalf("remaining budget = %s, want 7500.00", report.RemainingBudget.StringFixed(2))
		}

		// estimates reduce the remaining budget
		if _, err := models.CreateThirdPartyEstimate(adminCtx, &models.NewThirdPartyEstimate{
			ProjectId: project.ID,
			Amount:    decimal.RequireFromString("200"),
		}); err != nil {
			t.Fatalf("CreateThirdPartyEstimate: %v", err)
		}
		report, err = reports.GetProjectBudgetReport(ctx, project.ID, 2024, 52)
		if err != nil {
			t.Fatalf("GetProjectBudgetReport (with estimate): %v", err)
		}
		if report.RemainingBudget.StringFixed(2) != "7300.00" {
			t.Fatalf("remaining budget = %s, want 7300.00", report.RemainingBudget.StringFixed(2))
		}

		// the accepted project counts toward the organisation totals
		org, err := reports.GetOrganisationBudgetReport(ctx, 2024, 52)
		if err != nil {
			t.Fatalf("GetOrganisationBudgetReport: %v", err)
		}
		if len(org.Projects) != 1 {
			t.Fatalf("organisation report rows = %d, want 1", len(org.Projects))
		}
		if org.TotalRemainingBudget.StringFixed(2) != "7300.00" {
			t.Fatalf("organisation remaining = %s, want 7300.00", org.TotalRemainingBudget.StringFixed(2))
		}
	})

	t.Run("persons with ledger history are retired, not deleted", func(t *testing.T) {
		if _, err := models.DeletePerson(adminCtx, jan.ID); !utils.IsValidationError(err) {
			t.Fatalf("deleting a booked person: err = %v, want validation error", err)
		}
		retired, err := models.ToggleActivePerson(adminCtx, jan.ID, false)
		if err != nil {
			t.Fatalf("ToggleActivePerson: %v", err)
		}
		fresh, err := models.GetPerson(ctx, retired.ID)
		if err != nil {
			t.Fatalf("GetPerson after retire: %v", err)
		}
		if utils.DereferencePtr(fresh.IsActive) {
			t.Fatal("person must be inactive after retirement")
		}

		// a person without history still deletes cleanly
		if _, err := models.DeletePerson(adminCtx, jan2.ID); err != nil {
			t.Fatalf("DeletePerson (no history): %v", err)
		}
	})
}

func decimalPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("trs-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("trs-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=trs_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	// Example: "127.0.0.1:49154\n"
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
