package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/EDWINLEGEND/opshare-cegg-sub000/internal/conversion"
	"github.com/EDWINLEGEND/opshare-cegg-sub000/internal/ecoscore"
	"github.com/EDWINLEGEND/opshare-cegg-sub000/internal/ledger"
	"github.com/EDWINLEGEND/opshare-cegg-sub000/internal/missions"
	"github.com/EDWINLEGEND/opshare-cegg-sub000/internal/services/rewards"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
	maxBodyBytes        = 1 << 20
)

// RewardsService is the subset of *rewards.RewardsService the handlers use.
type RewardsService interface {
	InitializeUser(ctx context.Context, userID string) (rewards.InitResult, error)
	EarnCredits(ctx context.Context, userID string, c ledger.Currency, amount int64, description, missionRef string) (ledger.Transaction, error)
	SpendCredits(ctx context.Context, userID string, c ledger.Currency, amount int64, description string) (ledger.Transaction, error)
	ConvertLeafsToTreeCoins(ctx context.Context, userID string, amount *int64) (conversion.Result, error)
	ProgressMission(ctx context.Context, userID, missionID string, incrementBy int) (missions.State, error)
	CompleteMission(ctx context.Context, userID, missionID string) (missions.Completion, error)
	GetBalance(userID string) (ledger.Balance, error)
	GetTransactions(userID string, limit int) (iter.Seq[ledger.Transaction], error)
	Missions(userID string) ([]missions.State, error)
	EcoProfile(userID string) (rewards.Eco, error)
	Summary(userID string) (rewards.Summary, error)
}

// HandlerProvider wraps a RewardsService and exposes HTTP handlers.
type HandlerProvider struct {
	svc RewardsService
}

func NewHandler(svc RewardsService) *HandlerProvider {
	return &HandlerProvider{svc: svc}
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps ledger and mission errors to status codes. Details of
// unexpected errors stay in the log.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, status, "internal error")

		return
	}

	if status == http.StatusServiceUnavailable {
		writeError(w, status, "ledger storage unavailable, nothing was changed")
		return
	}

	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrUnknownUser), errors.Is(err, missions.ErrMissionNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrInsufficientBalance),
		errors.Is(err, missions.ErrMissionAlreadyCompleted),
		errors.Is(err, missions.ErrMissionNotEligible):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrInvalidCurrency),
		errors.Is(err, ledger.ErrInvalidUserID),
		errors.Is(err, rewards.ErrReservedMissionRef):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrPersistenceWriteFailed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func userIDFromPath(r *http.Request) (string, error) {
	id := strings.TrimSpace(chi.URLParam(r, "userId"))
	if id == "" {
		return "", errors.New("missing userId")
	}

	if len(id) > 128 {
		return "", errors.New("userId too long")
	}

	return id, nil
}

// decodeBody decodes a JSON body into dst. An empty body is accepted only
// when allowEmpty is set, leaving dst untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	err := dec.Decode(dst)
	if err != nil {
		if errors.Is(err, io.EOF) {
			if allowEmpty {
				return nil
			}

			return errors.New("empty body")
		}

		return errors.New("invalid JSON")
	}

	return nil
}

// --- Views ---

type balanceView struct {
	UserID   string `json:"userId"`
	Leaf     string `json:"leaf"`
	TreeCoin string `json:"treeCoin"`
}

func newBalanceView(userID string, b ledger.Balance) balanceView {
	return balanceView{
		UserID:   userID,
		Leaf:     ledger.FormatAmount(ledger.Leaf, b.Leaf),
		TreeCoin: ledger.FormatAmount(ledger.TreeCoin, b.TreeCoin),
	}
}

type txView struct {
	ID          string          `json:"id"`
	Seq         int64           `json:"seq"`
	Currency    ledger.Currency `json:"currency"`
	Kind        ledger.Kind     `json:"kind"`
	Amount      string          `json:"amount"`
	Description string          `json:"description"`
	MissionRef  string          `json:"missionRef,omitempty"`
	LinkID      string          `json:"linkId,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
}

func newTxView(t ledger.Transaction) txView {
	return txView{
		ID:          t.ID,
		Seq:         t.Seq,
		Currency:    t.Currency,
		Kind:        t.Kind(),
		Amount:      ledger.FormatAmount(t.Currency, t.Amount),
		Description: t.Description,
		MissionRef:  t.MissionRef,
		LinkID:      t.LinkID,
		Timestamp:   t.Timestamp,
	}
}

func newTxViews(txns []ledger.Transaction) []txView {
	out := make([]txView, 0, len(txns))
	for _, t := range txns {
		out = append(out, newTxView(t))
	}

	return out
}

type missionView struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	LeafReward     string    `json:"leafReward"`
	TreeCoinReward string    `json:"treeCoinReward,omitempty"`
	TargetCount    int       `json:"targetCount"`
	Progress       int       `json:"progress"`
	Status         string    `json:"status"`
	Eligible       bool      `json:"eligible"`
	Sustainable    bool      `json:"sustainable"`
	CompletedAt    time.Time `json:"completedAt,omitzero"`
}

func newMissionView(st missions.State) missionView {
	v := missionView{
		ID:          st.Mission.ID,
		Title:       st.Mission.Title,
		Description: st.Mission.Description,
		LeafReward:  ledger.FormatAmount(ledger.Leaf, st.Mission.LeafReward),
		TargetCount: st.Mission.Requirement.TargetCount,
		Progress:    st.Progress,
		Status:      st.Status.String(),
		Eligible:    st.Eligible(),
		Sustainable: st.Mission.Sustainable,
		CompletedAt: st.CompletedAt,
	}

	if st.Mission.TreeCoinReward > 0 {
		v.TreeCoinReward = ledger.FormatAmount(ledger.TreeCoin, st.Mission.TreeCoinReward)
	}

	return v
}

// --- Handlers ---

// InitializeUserHandler handles POST /users/{userId}
func (h *HandlerProvider) InitializeUserHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.svc.InitializeUser(r.Context(), userID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}

	writeJSON(w, status, map[string]any{
		"created": res.Created,
		"balance": newBalanceView(userID, res.Balance),
	})
}

// GetBalanceHandler handles GET /users/{userId}/balance
func (h *HandlerProvider) GetBalanceHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	bal, err := h.svc.GetBalance(userID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newBalanceView(userID, bal))
}

// GetTransactionsHandler handles GET /users/{userId}/transactions?limit=N
func (h *HandlerProvider) GetTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	limit := defaultHistoryLimit

	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit <= 0 || limit > maxHistoryLimit {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("limit must be between 1 and %d", maxHistoryLimit))
			return
		}
	}

	seq, err := h.svc.GetTransactions(userID, limit)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	views := make([]txView, 0, limit)
	for t := range seq {
		views = append(views, newTxView(t))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"userId":       userID,
		"transactions": views,
	})
}

type creditRequest struct {
	Currency    string `json:"currency"`
	Amount      string `json:"amount"`
	Description string `json:"description"`
	MissionRef  string `json:"missionRef"`
}

func (req creditRequest) parse() (ledger.Currency, int64, error) {
	c, err := ledger.ParseCurrency(req.Currency)
	if err != nil {
		return "", 0, err
	}

	amount, err := ledger.ParseAmount(c, req.Amount)
	if err != nil {
		return "", 0, err
	}

	return c, amount, nil
}

// EarnHandler handles POST /users/{userId}/earn
func (h *HandlerProvider) EarnHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req creditRequest

	err = decodeBody(w, r, &req, false)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	c, amount, err := req.parse()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	t, err := h.svc.EarnCredits(r.Context(), userID, c, amount, req.Description, req.MissionRef)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, newTxView(t))
}

// SpendHandler handles POST /users/{userId}/spend
func (h *HandlerProvider) SpendHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req creditRequest

	err = decodeBody(w, r, &req, false)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if req.MissionRef != "" {
		writeError(w, http.StatusBadRequest, "missionRef is not allowed on spend")
		return
	}

	c, amount, err := req.parse()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	t, err := h.svc.SpendCredits(r.Context(), userID, c, amount, req.Description)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, newTxView(t))
}

type convertRequest struct {
	Amount string `json:"amount"`
}

// ConvertHandler handles POST /users/{userId}/convert. Without an amount the
// largest convertible multiple is used.
func (h *HandlerProvider) ConvertHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req convertRequest

	err = decodeBody(w, r, &req, true)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var amount *int64

	if strings.TrimSpace(req.Amount) != "" {
		leafs, perr := ledger.ParseAmount(ledger.Leaf, req.Amount)
		if perr != nil {
			writeError(w, http.StatusBadRequest, perr.Error())
			return
		}

		amount = &leafs
	}

	res, err := h.svc.ConvertLeafsToTreeCoins(r.Context(), userID, amount)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"leafsSpent":      ledger.FormatAmount(ledger.Leaf, res.LeafsSpent),
		"treeCoinsEarned": ledger.FormatAmount(ledger.TreeCoin, res.TreeCoinsEarned),
		"linkId":          res.LinkID,
	})
}

// GetMissionsHandler handles GET /users/{userId}/missions
func (h *HandlerProvider) GetMissionsHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	states, err := h.svc.Missions(userID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	views := make([]missionView, 0, len(states))
	for _, st := range states {
		views = append(views, newMissionView(st))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"userId":   userID,
		"missions": views,
	})
}

type progressRequest struct {
	IncrementBy *int `json:"incrementBy"`
}

// ProgressMissionHandler handles POST /users/{userId}/missions/{missionId}/progress
func (h *HandlerProvider) ProgressMissionHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req progressRequest

	err = decodeBody(w, r, &req, true)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	inc := 1
	if req.IncrementBy != nil {
		inc = *req.IncrementBy
	}

	st, err := h.svc.ProgressMission(r.Context(), userID, chi.URLParam(r, "missionId"), inc)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newMissionView(st))
}

// CompleteMissionHandler handles POST /users/{userId}/missions/{missionId}/complete
func (h *HandlerProvider) CompleteMissionHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	c, err := h.svc.CompleteMission(r.Context(), userID, chi.URLParam(r, "missionId"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"mission": newMissionView(c.State),
		"rewards": newTxViews(c.Rewards),
	})
}

type ecoView struct {
	Points   int64          `json:"points"`
	Score    int64          `json:"score"`
	MaxScore int64          `json:"maxScore"`
	Level    ecoscore.Level `json:"level"`
}

// GetEcoHandler handles GET /users/{userId}/eco
func (h *HandlerProvider) GetEcoHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	eco, err := h.svc.EcoProfile(userID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, ecoView(eco))
}

// GetSummaryHandler handles GET /users/{userId}/summary
func (h *HandlerProvider) GetSummaryHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sum, err := h.svc.Summary(userID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"balance":            newBalanceView(userID, sum.Balance),
		"completedMissions":  sum.CompletedMissions,
		"totalMissions":      sum.TotalMissions,
		"eco":                ecoView(sum.Eco),
		"recentTransactions": newTxViews(sum.Recent),
	})
}
