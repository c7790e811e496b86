package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"bitbucket.org/stitchfocus/garments_backend/config"
	"bitbucket.org/stitchfocus/garments_backend/middlewares"
	"bitbucket.org/stitchfocus/garments_backend/models"
	"bitbucket.org/stitchfocus/garments_backend/models/reports"
	"bitbucket.org/stitchfocus/garments_backend/utils"
	"bitbucket.org/stitchfocus/garments_backend/workflow"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

const defaultPort = "8080"

func correlationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationId := c.Request.Header.Get("X-Correlation-Id")
		if correlationId == "" {
			correlationId = uuid.NewString()
		}
		ctx := utils.SetCorrelationIdInContext(c.Request.Context(), correlationId)
		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Correlation-Id", correlationId)
		c.Next()
	}
}

// renderError maps typed domain errors onto HTTP statuses. Client faults
// carry their own message; anything else is logged and rendered generically.
func renderError(c *gin.Context, operation string, err error) {
	logger := config.GetLogger()

	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(ve)})
		return
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) || errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if errors.Is(err, utils.ErrorRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if utils.IsClientError(err) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	var lte *utils.LockTimeoutError
	if errors.As(err, &lte) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "operation timed out, please retry"})
		return
	}

	correlationId, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
	config.LogError(logger, "server.go", operation, "correlation "+correlationId, nil, err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "something went wrong"})
}

func requireBusiness(c *gin.Context) (context.Context, bool) {
	ctx := c.Request.Context()
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return nil, false
	}
	return ctx, true
}

func createLotHandler(c *gin.Context) {
	ctx, ok := requireBusiness(c)
	if !ok {
		return
	}
	var input models.NewCuttingLot
	if err := c.ShouldBindJSON(&input); err != nil {
		renderError(c, "createLotHandler", err)
		return
	}
	summary, err := workflow.CreateCuttingLot(ctx, &input)
	if err != nil {
		renderError(c, "createLotHandler", err)
		return
	}
	c.JSON(http.StatusCreated, summary)
}

func listLotsHandler(c *gin.Context) {
	ctx, ok := requireBusiness(c)
	if !ok {
		return
	}
	var sku *string
	if q := c.Query("sku"); q != "" {
		sku = &q
	}
	lots, err := models.GetCuttingLotAll(ctx, sku)
	if err != nil {
		renderError(c, "listLotsHandler", err)
		return
	}
	c.JSON(http.StatusOK, lots)
}

// lotByParam resolves a lot by number, or by id when the path segment is
// purely numeric (lot numbers always carry an alphabetic prefix).
func lotByParam(ctx context.Context, key string) (*models.CuttingLot, error) {
	if id, err := strconv.Atoi(key); err == nil {
		return models.GetCuttingLot(ctx, id)
	}
	return models.GetCuttingLotByNumber(ctx, key)
}

func getLotHandler(c *gin.Context) {
	ctx, ok := requireBusiness(c)
	if !ok {
		return
	}
	lot, err := lotByParam(ctx, c.Param("lotNumber"))
	if err != nil {
		renderError(c, "getLotHandler", err)
		return
	}
	c.JSON(http.StatusOK, lot)
}

func getLotBundlesHandler(c *gin.Context) {
	ctx, ok := requireBusiness(c)
	if !ok {
		return
	}
	lot, err := lotByParam(ctx, c.Param("lotNumber"))
	if err != nil {
		renderError(c, "getLotBundlesHandler", err)
		return
	}
	bundles, err := models.GetLotBundles(ctx, lot.ID)
	if err != nil {
		renderError(c, "getLotBundlesHandler", err)
		return
	}
	c.JSON(http.StatusOK, bundles)
}

func remainingHandler(c *gin.Context) {
	ctx, ok := requireBusiness(c)
	if !ok {
		return
	}
	remaining, err := workflow.RemainingForSize(ctx, c.Param("lotNumber"), c.Param("label"))
	if err != nil {
		renderError(c, "remainingHandler", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"lot_number": c.Param("lotNumber"),
		"size_label": c.Param("label"),
		"remaining":  remaining,
	})
}

func consumeHandler(c *gin.Context) {
	ctx, ok := requireBusiness(c)
	if !ok {
		return
	}
	var input workflow.NewStageConsumption
	if err := c.ShouldBindJSON(&input); err != nil {
		renderError(c, "consumeHandler", err)
		return
	}
	input.LotNumber = c.Param("lotNumber")
	record, err := workflow.ConsumeLotQuantity(ctx, &input)
	if err != nil {
		renderError(c, "consumeHandler", err)
		return
	}
	c.JSON(http.StatusCreated, record)
}

func topUpConsumptionHandler(c *gin.Context) {
	ctx, ok := requireBusiness(c)
	if !ok {
		return
	}
	var input struct {
		Pieces int `json:"pieces" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		renderError(c, "topUpConsumptionHandler", err)
		return
	}
	recordId, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid consumption id"})
		return
	}
	record, err := workflow.TopUpConsumption(ctx, recordId, input.Pieces)
	if err != nil {
		renderError(c, "topUpConsumptionHandler", err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func createConsigneeHandler(c *gin.Context) {
	ctx, ok := requireBusiness(c)
	if !ok {
		return
	}
	var input models.NewConsignee
	if err := c.ShouldBindJSON(&input); err != nil {
		renderError(c, "createConsigneeHandler", err)
		return
	}
	consignee, err := models.CreateConsignee(ctx, &input)
	if err != nil {
		renderError(c, "createConsigneeHandler", err)
		return
	}
	c.JSON(http.StatusCreated, consignee)
}

func getConsigneeHandler(c *gin.Context) {
	ctx, ok := requireBusiness(c)
	if !ok {
		return
	}
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid consignee id"})
		return
	}
	consignee, err := models.GetConsignee(ctx, id)
	if err != nil {
		renderError(c, "getConsigneeHandler", err)
		return
	}
	c.JSON(http.StatusOK, consignee)
}

func updateConsigneeHandler(c *gin.Context) {
	ctx, ok := requireBusiness(c)
	if !ok {
		return
	}
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid consignee id"})
		return
	}
	var input models.NewConsignee
	if err := c.ShouldBindJSON(&input); err != nil {
		renderError(c, "updateConsigneeHandler", err)
		return
	}
	consignee, err := models.UpdateConsignee(ctx, id, &input)
	if err != nil {
		renderError(c, "updateConsigneeHandler", err)
		return
	}
	c.JSON(http.StatusOK, consignee)
}

func listConsigneesHandler(c *gin.Context) {
	ctx, ok := requireBusiness(c)
	if !ok {
		return
	}
	consignees, err := models.GetConsigneeAll(ctx)
	if err != nil {
		renderError(c, "listConsigneesHandler", err)
		return
	}
	c.JSON(http.StatusOK, consignees)
}

func createRollHandler(c *gin.Context) {
	ctx, ok := requireBusiness(c)
	if !ok {
		return
	}
	var input models.NewFabricRoll
	if err := c.ShouldBindJSON(&input); err != nil {
		renderError(c, "createRollHandler", err)
		return
	}
	roll, err := models.CreateFabricRoll(ctx, &input)
	if err != nil {
		renderError(c, "createRollHandler", err)
		return
	}
	c.JSON(http.StatusCreated, roll)
}

func listRollsHandler(c *gin.Context) {
	ctx, ok := requireBusiness(c)
	if !ok {
		return
	}
	rolls, err := models.GetFabricRollAll(ctx)
	if err != nil {
		renderError(c, "listRollsHandler", err)
		return
	}
	c.JSON(http.StatusOK, rolls)
}

func lotRegisterHandler(c *gin.Context) {
	ctx, ok := requireBusiness(c)
	if !ok {
		return
	}
	rows, err := reports.GetLotRegisterReport(ctx)
	if err != nil {
		renderError(c, "lotRegisterHandler", err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

func lotRegisterExcelHandler(c *gin.Context) {
	ctx, ok := requireBusiness(c)
	if !ok {
		return
	}
	f, err := reports.ExportLotRegisterExcel(ctx)
	if err != nil {
		renderError(c, "lotRegisterExcelHandler", err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="lot-register.xlsx"`)
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	if err := f.Write(c.Writer); err != nil {
		config.LogError(config.GetLogger(), "server.go", "lotRegisterExcelHandler", "Write", nil, err)
	}
}

func newRouter() *gin.Engine {
	r := gin.Default()
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Correlation-Id"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))
	r.Use(correlationMiddleware())
	r.Use(middlewares.AuthMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	{
		api.POST("/lots", createLotHandler)
		api.GET("/lots", listLotsHandler)
		api.GET("/lots/:lotNumber", getLotHandler)
		api.GET("/lots/:lotNumber/bundles", getLotBundlesHandler)
		api.GET("/lots/:lotNumber/sizes/:label/remaining", remainingHandler)
		api.POST("/lots/:lotNumber/consumptions", consumeHandler)
		api.POST("/consumptions/:id/add", topUpConsumptionHandler)

		api.POST("/consignees", createConsigneeHandler)
		api.GET("/consignees", listConsigneesHandler)
		api.GET("/consignees/:id", getConsigneeHandler)
		api.PUT("/consignees/:id", updateConsigneeHandler)
		api.POST("/rolls", createRollHandler)
		api.GET("/rolls", listRollsHandler)

		api.GET("/reports/lot-register", lotRegisterHandler)
		api.GET("/reports/lot-register/excel", lotRegisterExcelHandler)
	}
	return r
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = defaultPort
	}

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: newRouter(),
	}

	go func() {
		log.Printf("listening on :%s", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("server shutdown: %v", err)
	}
	log.Println("server exited")
}
