package models_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"bitbucket.org/stitchfocus/garments_backend/config"
	"bitbucket.org/stitchfocus/garments_backend/models"
	"bitbucket.org/stitchfocus/garments_backend/utils"
	"bitbucket.org/stitchfocus/garments_backend/workflow"
	"github.com/shopspring/decimal"
)

// setupIntegration spins up MySQL+Redis containers, connects the config
// globals and returns a context carrying a fresh business.
func setupIntegration(t *testing.T) context.Context {
	t.Helper()
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "garments_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "Test")

	biz, err := models.CreateBusiness(ctx, &models.NewBusiness{
		Name:  "Test Garments",
		Email: "owner@test.local",
	})
	if err != nil {
		t.Fatalf("CreateBusiness: %v", err)
	}
	return utils.SetBusinessIdInContext(ctx, biz.ID.String())
}

func seedRoll(t *testing.T, ctx context.Context, rollNumber string, weight int64) {
	t.Helper()
	_, err := models.CreateFabricRoll(ctx, &models.NewFabricRoll{
		RollNumber: rollNumber,
		FabricType: "Single Jersey 180gsm",
		Weight:     decimal.NewFromInt(weight),
	})
	if err != nil {
		t.Fatalf("CreateFabricRoll(%s): %v", rollNumber, err)
	}
}

func TestLotCreationAllocatesSequentialNumbersAndDrawsRolls(t *testing.T) {
	ctx := setupIntegration(t)
	seedRoll(t, ctx, "R-1", 100)

	input := models.NewCuttingLot{
		OwnerId:        7,
		OwnerName:      "Mumbai Traders",
		Sku:            "TSHIRT-01",
		FabricType:     "Single Jersey 180gsm",
		BundleCapacity: 5,
		Sizes: []models.NewLotSizeEntry{
			{Label: "S", PatternCount: decimal.NewFromInt(2)},
			{Label: "M", PatternCount: decimal.NewFromInt(3)},
		},
		Rolls: []models.NewLotRollEntry{
			{RollNumber: "R-1", Weight: decimal.NewFromInt(10), Layers: 4},
		},
	}

	first, err := workflow.CreateCuttingLot(ctx, &input)
	if err != nil {
		t.Fatalf("CreateCuttingLot(first): %v", err)
	}
	if first.LotNumber != "mumbaitr1" {
		t.Fatalf("expected lot number mumbaitr1, got %q", first.LotNumber)
	}
	if first.TotalPieces != 20 || first.BundleCount != 5 {
		t.Fatalf("expected 20 pieces in 5 bundles, got %d in %d", first.TotalPieces, first.BundleCount)
	}

	second, err := workflow.CreateCuttingLot(ctx, &input)
	if err != nil {
		t.Fatalf("CreateCuttingLot(second): %v", err)
	}
	if second.LotNumber != "mumbaitr2" {
		t.Fatalf("expected lot number mumbaitr2, got %q", second.LotNumber)
	}

	// Roll weight drawn once per lot: 100 - 10 - 10 = 80.
	db := config.GetDB()
	businessId, _ := utils.GetBusinessIdFromContext(ctx)
	var roll models.FabricRoll
	if err := db.Where("business_id = ? AND roll_number = ?", businessId, "R-1").First(&roll).Error; err != nil {
		t.Fatalf("fetch roll: %v", err)
	}
	if roll.AvailableWeight.Cmp(decimal.NewFromInt(80)) != 0 {
		t.Fatalf("expected roll weight 80, got %s", roll.AvailableWeight)
	}

	// Bundle codes are lot-global: M continues after S.
	lot, err := models.GetCuttingLotByNumber(ctx, "mumbaitr1")
	if err != nil {
		t.Fatalf("GetCuttingLotByNumber: %v", err)
	}
	bundles, err := models.GetLotBundles(ctx, lot.ID)
	if err != nil {
		t.Fatalf("GetLotBundles: %v", err)
	}
	if len(bundles) != 5 {
		t.Fatalf("expected 5 bundles, got %d", len(bundles))
	}
	if bundles[2].Code != "mumbaitr1b3" || bundles[2].SizeLocalSequence != 1 {
		t.Fatalf("expected third bundle mumbaitr1b3 with size-local seq 1, got %+v", bundles[2])
	}

	var pieceCount int64
	if err := db.Model(&models.LotPiece{}).Where("lot_id = ?", lot.ID).Count(&pieceCount).Error; err != nil {
		t.Fatalf("count pieces: %v", err)
	}
	if pieceCount != 20 {
		t.Fatalf("expected 20 pieces persisted, got %d", pieceCount)
	}

	// Lookup by numeric id resolves the same lot and the same bundles as the
	// lot-number lookup above.
	byId, err := models.GetCuttingLot(ctx, lot.ID)
	if err != nil {
		t.Fatalf("GetCuttingLot(%d): %v", lot.ID, err)
	}
	if byId.LotNumber != lot.LotNumber {
		t.Fatalf("by-id lookup resolved %q, want %q", byId.LotNumber, lot.LotNumber)
	}
	bundlesById, err := models.GetLotBundles(ctx, byId.ID)
	if err != nil {
		t.Fatalf("GetLotBundles(by id): %v", err)
	}
	if len(bundlesById) != len(bundles) {
		t.Fatalf("expected %d bundles via id lookup, got %d", len(bundles), len(bundlesById))
	}
}

func TestLotCreationIsAtomicOnInsufficientRollWeight(t *testing.T) {
	ctx := setupIntegration(t)
	seedRoll(t, ctx, "R-OK", 50)
	seedRoll(t, ctx, "R-THIN", 5)

	input := models.NewCuttingLot{
		OwnerId:        1,
		OwnerName:      "Acme",
		Sku:            "PANT-02",
		FabricType:     "Denim",
		BundleCapacity: 10,
		Sizes: []models.NewLotSizeEntry{
			{Label: "L", PatternCount: decimal.NewFromInt(2)},
		},
		Rolls: []models.NewLotRollEntry{
			{RollNumber: "R-OK", Weight: decimal.NewFromInt(20), Layers: 3},
			{RollNumber: "R-THIN", Weight: decimal.NewFromInt(8), Layers: 2},
		},
	}

	_, err := workflow.CreateCuttingLot(ctx, &input)
	var insufficient *utils.InsufficientRollWeightError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientRollWeightError, got %v", err)
	}
	if insufficient.RollNumber != "R-THIN" {
		t.Fatalf("expected failing roll R-THIN, got %q", insufficient.RollNumber)
	}

	// Nothing persisted: no lot, and R-OK's weight untouched even though it
	// was drawn before the failing roll in the same transaction.
	db := config.GetDB()
	businessId, _ := utils.GetBusinessIdFromContext(ctx)
	var lotCount int64
	if err := db.Model(&models.CuttingLot{}).Where("business_id = ?", businessId).Count(&lotCount).Error; err != nil {
		t.Fatalf("count lots: %v", err)
	}
	if lotCount != 0 {
		t.Fatalf("expected no lots after rollback, got %d", lotCount)
	}
	var ok models.FabricRoll
	if err := db.Where("business_id = ? AND roll_number = ?", businessId, "R-OK").First(&ok).Error; err != nil {
		t.Fatalf("fetch roll: %v", err)
	}
	if ok.AvailableWeight.Cmp(decimal.NewFromInt(50)) != 0 {
		t.Fatalf("expected R-OK weight 50 after rollback, got %s", ok.AvailableWeight)
	}
}

func TestConcurrentLotCreationNeverDuplicatesNumbers(t *testing.T) {
	ctx := setupIntegration(t)
	seedRoll(t, ctx, "R-BIG", 10000)

	const n = 10
	var wg sync.WaitGroup
	numbers := make(chan string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			input := models.NewCuttingLot{
				OwnerId:        42,
				OwnerName:      "Concurrent Co",
				Sku:            "SKU-C",
				FabricType:     "Rib 2x2",
				BundleCapacity: 10,
				Sizes: []models.NewLotSizeEntry{
					{Label: "FREE", PatternCount: decimal.NewFromInt(1)},
				},
				Rolls: []models.NewLotRollEntry{
					{RollNumber: "R-BIG", Weight: decimal.NewFromInt(1), Layers: 2},
				},
			}
			summary, err := workflow.CreateCuttingLot(ctx, &input)
			if err != nil {
				t.Errorf("CreateCuttingLot: %v", err)
				return
			}
			numbers <- summary.LotNumber
		}()
	}
	wg.Wait()
	close(numbers)

	seen := map[string]bool{}
	for num := range numbers {
		if seen[num] {
			t.Fatalf("duplicate lot number %q", num)
		}
		seen[num] = true
	}
	if len(seen) != n {
		t.Fatalf("expected %d distinct lot numbers, got %d", n, len(seen))
	}
}

func TestConsumptionNeverExceedsRemainder(t *testing.T) {
	ctx := setupIntegration(t)
	seedRoll(t, ctx, "R-1", 100)

	// 2 patterns x 10 layers = 20 pieces of size M.
	summary, err := workflow.CreateCuttingLot(ctx, &models.NewCuttingLot{
		OwnerId:        1,
		OwnerName:      "Acme",
		Sku:            "SKU-1",
		FabricType:     "Denim",
		BundleCapacity: 10,
		Sizes: []models.NewLotSizeEntry{
			{Label: "M", PatternCount: decimal.NewFromInt(2)},
		},
		Rolls: []models.NewLotRollEntry{
			{RollNumber: "R-1", Weight: decimal.NewFromInt(10), Layers: 10},
		},
	})
	if err != nil {
		t.Fatalf("CreateCuttingLot: %v", err)
	}

	remaining, err := workflow.RemainingForSize(ctx, summary.LotNumber, "M")
	if err != nil {
		t.Fatalf("RemainingForSize: %v", err)
	}
	if remaining != 20 {
		t.Fatalf("expected remainder 20, got %d", remaining)
	}

	record, err := workflow.ConsumeLotQuantity(ctx, &workflow.NewStageConsumption{
		LotNumber: summary.LotNumber,
		SizeLabel: "M",
		Stage:     models.StageTypeStitching,
		Pieces:    12,
	})
	if err != nil {
		t.Fatalf("ConsumeLotQuantity: %v", err)
	}

	// Over-draw the remaining 8 by one piece.
	_, err = workflow.ConsumeLotQuantity(ctx, &workflow.NewStageConsumption{
		LotNumber: summary.LotNumber,
		SizeLabel: "M",
		Stage:     models.StageTypeWashing,
		Pieces:    9,
	})
	var insufficient *utils.InsufficientRemainderError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientRemainderError, got %v", err)
	}

	// The failed draw left nothing behind.
	remaining, err = workflow.RemainingForSize(ctx, summary.LotNumber, "M")
	if err != nil {
		t.Fatalf("RemainingForSize: %v", err)
	}
	if remaining != 8 {
		t.Fatalf("expected remainder 8 after failed over-draw, got %d", remaining)
	}

	// Top-up to exactly zero remainder succeeds; one more piece does not.
	if _, err := workflow.TopUpConsumption(ctx, record.ID, 8); err != nil {
		t.Fatalf("TopUpConsumption: %v", err)
	}
	remaining, err = workflow.RemainingForSize(ctx, summary.LotNumber, "M")
	if err != nil {
		t.Fatalf("RemainingForSize: %v", err)
	}
	if remaining != 0 {
		t.Fatalf("expected remainder 0, got %d", remaining)
	}
	if _, err := workflow.TopUpConsumption(ctx, record.ID, 1); !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientRemainderError on exhausted size, got %v", err)
	}
}

func TestChallanConsumptionAllocatesFiscalYearNumber(t *testing.T) {
	ctx := setupIntegration(t)
	seedRoll(t, ctx, "R-1", 100)

	consignee, err := models.CreateConsignee(ctx, &models.NewConsignee{Name: "Wash House"})
	if err != nil {
		t.Fatalf("CreateConsignee: %v", err)
	}

	summary, err := workflow.CreateCuttingLot(ctx, &models.NewCuttingLot{
		OwnerId:        1,
		OwnerName:      "Acme",
		Sku:            "SKU-1",
		FabricType:     "Denim",
		BundleCapacity: 10,
		Sizes: []models.NewLotSizeEntry{
			{Label: "M", PatternCount: decimal.NewFromInt(1)},
		},
		Rolls: []models.NewLotRollEntry{
			{RollNumber: "R-1", Weight: decimal.NewFromInt(5), Layers: 10},
		},
	})
	if err != nil {
		t.Fatalf("CreateCuttingLot: %v", err)
	}

	record, err := workflow.ConsumeLotQuantity(ctx, &workflow.NewStageConsumption{
		LotNumber:   summary.LotNumber,
		SizeLabel:   "M",
		Stage:       models.StageTypeChallan,
		Pieces:      4,
		ConsigneeId: consignee.ID,
	})
	if err != nil {
		t.Fatalf("ConsumeLotQuantity(challan): %v", err)
	}
	if record.ChallanNumber == nil {
		t.Fatal("expected a challan number on challan-stage consumption")
	}
	business, err := models.GetBusinessById(ctx, consignee.BusinessId)
	if err != nil {
		t.Fatalf("GetBusinessById: %v", err)
	}
	startMonth, err := utils.GetFiscalYearStartMonth(business.FiscalYear)
	if err != nil {
		t.Fatalf("GetFiscalYearStartMonth: %v", err)
	}
	want := "CH/" + utils.FiscalYearKey(startMonth, time.Now().UTC()) + "/00001"
	if *record.ChallanNumber != want {
		t.Fatalf("expected challan number %q, got %q", want, *record.ChallanNumber)
	}

	// Challan without a consignee is a client fault.
	_, err = workflow.ConsumeLotQuantity(ctx, &workflow.NewStageConsumption{
		LotNumber: summary.LotNumber,
		SizeLabel: "M",
		Stage:     models.StageTypeChallan,
		Pieces:    1,
	})
	var ve *utils.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError for missing consignee, got %v", err)
	}
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("garments-test-redis-%d", time.Now().UnixNano())
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
	name := fmt.Sprintf("garments-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=garments_test",
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
