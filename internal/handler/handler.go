package handler

import (
	"context"
	"errors"
	"io"
	"strconv"

	"liverymarket/internal/catalog"
	"liverymarket/internal/model"
	"liverymarket/internal/service"
	"liverymarket/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Handler serves the operations the chat front end calls.
type Handler struct {
	accountService   *service.AccountService
	injectionService *service.InjectionService
	topupService     *service.TopupService
	catalog          *catalog.Service
	logger           *logrus.Logger
}

func NewHandler(accounts *service.AccountService, injections *service.InjectionService,
	topups *service.TopupService, catalogService *catalog.Service, logger *logrus.Logger) *Handler {
	return &Handler{
		accountService:   accounts,
		injectionService: injections,
		topupService:     topups,
		catalog:          catalogService,
		logger:           logger,
	}
}

func pathInt64(c *gin.Context, name string) (int64, bool) {
	v, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || v <= 0 {
		response.ParamError(c, "invalid "+name)
		return 0, false
	}
	return v, true
}

func queryInt(c *gin.Context, name string, def int) int {
	v, err := strconv.Atoi(c.DefaultQuery(name, strconv.Itoa(def)))
	if err != nil {
		return def
	}
	return v
}

// ============================================================
// Accounts
// ============================================================

type EnsureAccountRequest struct {
	ChatID      int64  `json:"chat_id" binding:"required"`
	DisplayName string `json:"display_name"`
}

// EnsureAccount registers a chat user on first contact.
// POST /api/v1/accounts
func (h *Handler) EnsureAccount(c *gin.Context) {
	var req EnsureAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}

	account, err := h.accountService.EnsureAccount(c.Request.Context(), req.ChatID, req.DisplayName)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, account)
}

// GetBalance
// GET /api/v1/accounts/:chat_id/balance
func (h *Handler) GetBalance(c *gin.Context) {
	chatID, ok := pathInt64(c, "chat_id")
	if !ok {
		return
	}

	balance, err := h.accountService.GetBalance(c.Request.Context(), chatID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, gin.H{
		"chat_id": chatID,
		"credit":  balance,
	})
}

type LinkAccountRequest struct {
	Credential string `json:"credential" binding:"required"`
}

// LinkAccount validates a game token and stores it.
// POST /api/v1/accounts/:chat_id/link
func (h *Handler) LinkAccount(c *gin.Context) {
	chatID, ok := pathInt64(c, "chat_id")
	if !ok {
		return
	}
	var req LinkAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "credential is required")
		return
	}

	externalID, err := h.accountService.LinkAccount(c.Request.Context(), chatID, req.Credential)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, gin.H{
		"linked":      true,
		"external_id": externalID,
	})
}

// GetLink
// GET /api/v1/accounts/:chat_id/link
func (h *Handler) GetLink(c *gin.Context) {
	chatID, ok := pathInt64(c, "chat_id")
	if !ok {
		return
	}

	externalID, linked, err := h.accountService.GetLinkedID(c.Request.Context(), chatID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	data := gin.H{"linked": linked}
	if linked {
		data["external_id"] = externalID
	}
	response.Success(c, data)
}

// UnlinkAccount
// DELETE /api/v1/accounts/:chat_id/link
func (h *Handler) UnlinkAccount(c *gin.Context) {
	chatID, ok := pathInt64(c, "chat_id")
	if !ok {
		return
	}

	if err := h.accountService.UnlinkAccount(c.Request.Context(), chatID); err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, gin.H{"linked": false})
}

// ListInjections
// GET /api/v1/accounts/:chat_id/injections?limit=20
func (h *Handler) ListInjections(c *gin.Context) {
	chatID, ok := pathInt64(c, "chat_id")
	if !ok {
		return
	}

	records, total, err := h.accountService.InjectionHistory(c.Request.Context(), chatID, queryInt(c, "limit", 20))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, gin.H{
		"list":  records,
		"total": total,
	})
}

// ListCredits
// GET /api/v1/accounts/:chat_id/credits?page=1&page_size=20
func (h *Handler) ListCredits(c *gin.Context) {
	chatID, ok := pathInt64(c, "chat_id")
	if !ok {
		return
	}
	page := queryInt(c, "page", 1)
	pageSize := queryInt(c, "page_size", 20)

	entries, total, err := h.accountService.CreditStatement(c.Request.Context(), chatID, page, pageSize)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, gin.H{
		"list":      entries,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// ============================================================
// Injection
// ============================================================

type InjectRequest struct {
	ItemID string `json:"item_id" binding:"required"`
}

// InjectItem spends one credit to put a livery into the linked game account.
// POST /api/v1/accounts/:chat_id/injections
//
// Partial success (granted, not customized) has its own code and never
// debits.
func (h *Handler) InjectItem(c *gin.Context) {
	chatID, ok := pathInt64(c, "chat_id")
	if !ok {
		return
	}
	var req InjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "item_id is required")
		return
	}

	result, err := h.injectionService.InjectItem(c.Request.Context(), chatID, req.ItemID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, result)
}

// ============================================================
// Catalog
// ============================================================

// ListCatalog
// GET /api/v1/catalog/cars
func (h *Handler) ListCatalog(c *gin.Context) {
	cars, err := h.catalog.Cars(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, gin.H{"list": cars})
}

// GetCar
// GET /api/v1/catalog/cars/:code
func (h *Handler) GetCar(c *gin.Context) {
	car, err := h.catalog.Car(c.Request.Context(), c.Param("code"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, car)
}

// GetLivery
// GET /api/v1/catalog/items/:id
func (h *Handler) GetLivery(c *gin.Context) {
	livery, err := h.catalog.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, livery)
}

// SearchCatalog
// GET /api/v1/catalog/search?q=flame&page=1&page_size=10
func (h *Handler) SearchCatalog(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		response.ParamError(c, "q is required")
		return
	}
	page := queryInt(c, "page", 1)
	if page < 1 {
		page = 1
	}
	pageSize := queryInt(c, "page_size", 10)
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 10
	}

	total, items, err := h.catalog.SearchPage(c.Request.Context(), query, (page-1)*pageSize, pageSize)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, gin.H{
		"list":      items,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// ============================================================
// Top-ups
// ============================================================

// ListProducts
// GET /api/v1/products
func (h *Handler) ListProducts(c *gin.Context) {
	products, err := h.topupService.ListProducts(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, gin.H{"list": products})
}

type CreateTopupRequest struct {
	ChatID    int64 `json:"chat_id" binding:"required"`
	ProductID int64 `json:"product_id" binding:"required"`
}

// CreateTopup
// POST /api/v1/topups
func (h *Handler) CreateTopup(c *gin.Context) {
	var req CreateTopupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}

	result, err := h.topupService.CreateTopup(c.Request.Context(), req.ChatID, req.ProductID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, result)
}

// ListTopups
// GET /api/v1/accounts/:chat_id/topups?page=1&page_size=20
func (h *Handler) ListTopups(c *gin.Context) {
	chatID, ok := pathInt64(c, "chat_id")
	if !ok {
		return
	}
	page := queryInt(c, "page", 1)
	pageSize := queryInt(c, "page_size", 20)

	list, total, err := h.topupService.ListTopups(c.Request.Context(), chatID, page, pageSize)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, gin.H{
		"list":      list,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

type AttachProofRequest struct {
	ChatID   int64  `json:"chat_id" binding:"required"`
	ProofRef string `json:"proof_ref" binding:"required"`
}

// AttachProof
// POST /api/v1/topups/:id/proof
func (h *Handler) AttachProof(c *gin.Context) {
	id, ok := pathInt64(c, "id")
	if !ok {
		return
	}
	var req AttachProofRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}

	trans, err := h.topupService.AttachProof(c.Request.Context(), req.ChatID, id, req.ProofRef)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, trans)
}

// ============================================================
// Admin
// ============================================================

type DecisionRequest struct {
	Notes string `json:"notes"`
}

// ApproveTopup
// POST /api/v1/admin/topups/:id/approve
func (h *Handler) ApproveTopup(c *gin.Context) {
	h.decide(c, h.topupService.Approve)
}

// RejectTopup
// POST /api/v1/admin/topups/:id/reject
func (h *Handler) RejectTopup(c *gin.Context) {
	h.decide(c, h.topupService.Reject)
}

type decisionFunc func(ctx context.Context, transactionID, adminID int64, notes string) (*service.DecisionResponse, error)

func (h *Handler) decide(c *gin.Context, fn decisionFunc) {
	id, ok := pathInt64(c, "id")
	if !ok {
		return
	}
	// The body is optional; an empty one means no notes.
	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}

	result, err := fn(c.Request.Context(), id, c.GetInt64(adminIDKey), req.Notes)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, result)
}

// ListPending
// GET /api/v1/admin/topups/pending?limit=50
func (h *Handler) ListPending(c *gin.Context) {
	rows, err := h.topupService.ListPending(c.Request.Context(), queryInt(c, "limit", 50))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, gin.H{"list": rows})
}

// LookupTopup finds a top-up by id or by the TX code the user quotes.
// GET /api/v1/admin/topups/lookup?code=TX... or ?id=12
func (h *Handler) LookupTopup(c *gin.Context) {
	var (
		trans *model.Transaction
		err   error
	)
	if code := c.Query("code"); code != "" {
		trans, err = h.topupService.GetTransactionByCode(c.Request.Context(), code)
	} else if id, convErr := strconv.ParseInt(c.Query("id"), 10, 64); convErr == nil && id > 0 {
		trans, err = h.topupService.GetTransaction(c.Request.Context(), id)
	} else {
		response.ParamError(c, "code or id is required")
		return
	}
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, trans)
}

// Stats
// GET /api/v1/admin/stats
func (h *Handler) Stats(c *gin.Context) {
	stats, err := h.topupService.Stats(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, stats)
}

// RefreshCatalog reloads the catalog; the old snapshot stays on failure.
// POST /api/v1/admin/catalog/refresh
func (h *Handler) RefreshCatalog(c *gin.Context) {
	if err := h.catalog.Refresh(c.Request.Context()); err != nil {
		response.BusinessError(c, response.CodeCatalogUnavailable, "catalog refresh failed, previous catalog kept")
		return
	}
	cars, err := h.catalog.Cars(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, gin.H{"cars": len(cars)})
}
