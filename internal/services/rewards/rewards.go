package rewards

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"slices"

	"github.com/EDWINLEGEND/opshare-cegg-sub000/internal/conversion"
	"github.com/EDWINLEGEND/opshare-cegg-sub000/internal/ecoscore"
	"github.com/EDWINLEGEND/opshare-cegg-sub000/internal/ledger"
	"github.com/EDWINLEGEND/opshare-cegg-sub000/internal/missions"
)

const recentTransactions = 5

var ErrReservedMissionRef = errors.New("mission reference is reserved for mission rewards")

type Config struct {
	ConversionRatio int64
	EcoMaxScore     int64
	EcoScaleDivisor int64
}

func DefaultConfig() Config {
	return Config{
		ConversionRatio: conversion.DefaultRatio,
		EcoMaxScore:     ecoscore.DefaultMaxScore,
		EcoScaleDivisor: ecoscore.DefaultScaleDivisor,
	}
}

// Metrics receives business events. *metrics.Ledger satisfies it.
type Metrics interface {
	Converted()
	MissionCompleted(missionID string)
	Failed(op string, err error)
}

type noopMetrics struct{}

func (noopMetrics) Converted()              {}
func (noopMetrics) MissionCompleted(string) {}
func (noopMetrics) Failed(string, error)    {}

type Option func(*RewardsService)

func WithMetrics(m Metrics) Option {
	return func(s *RewardsService) { s.metrics = m }
}

// RewardsService is the public surface of the ledger. It owns no state of its
// own; every mutation goes through the ledger store.
type RewardsService struct {
	store      *ledger.Store
	catalog    *missions.Catalog
	missions   *missions.Engine
	conversion *conversion.Engine
	eco        *ecoscore.Calculator
	metrics    Metrics
}

func New(store *ledger.Store, catalog *missions.Catalog, cfg Config, opts ...Option) (*RewardsService, error) {
	conv, err := conversion.New(store, cfg.ConversionRatio)
	if err != nil {
		return nil, fmt.Errorf("conversion engine: %w", err)
	}

	eco, err := ecoscore.NewCalculator(store, catalog, cfg.EcoMaxScore, cfg.EcoScaleDivisor)
	if err != nil {
		return nil, fmt.Errorf("eco calculator: %w", err)
	}

	s := &RewardsService{
		store:      store,
		catalog:    catalog,
		missions:   missions.NewEngine(catalog, store),
		conversion: conv,
		eco:        eco,
		metrics:    noopMetrics{},
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

func (s *RewardsService) fail(op string, err error) error {
	s.metrics.Failed(op, err)

	return fmt.Errorf("%s: %w", op, err)
}

type InitResult struct {
	Created bool           `json:"created"`
	Balance ledger.Balance `json:"balance"`
}

// InitializeUser opens the account and completes the signup mission in one
// unit of work. Calling it for an existing user changes nothing.
func (s *RewardsService) InitializeUser(ctx context.Context, userID string) (InitResult, error) {
	var created bool

	err := s.store.WithTx(ctx, func(tx *ledger.Tx) error {
		var err error

		created, err = tx.OpenAccount(userID)
		if err != nil || !created {
			return err
		}

		_, err = s.missions.ProgressIn(tx, userID, missions.Signup, 1)
		if err != nil {
			return fmt.Errorf("progress signup: %w", err)
		}

		_, err = s.missions.CompleteIn(tx, userID, missions.Signup)
		if err != nil {
			return fmt.Errorf("complete signup: %w", err)
		}

		return nil
	})
	if err != nil {
		return InitResult{}, s.fail("initialize user", err)
	}

	if created {
		s.metrics.MissionCompleted(missions.Signup)
		slog.Info("user initialized", "user_id", userID)
	}

	bal, err := s.store.Balances(userID)
	if err != nil {
		return InitResult{}, s.fail("initialize user", err)
	}

	return InitResult{Created: created, Balance: bal}, nil
}

// EarnCredits credits amount minor units. Catalog mission IDs are rejected as
// missionRef so a mission reward can only come from CompleteMission.
func (s *RewardsService) EarnCredits(
	ctx context.Context,
	userID string,
	currency ledger.Currency,
	amount int64,
	description string,
	missionRef string,
) (ledger.Transaction, error) {
	if _, ok := s.catalog.Get(missionRef); ok {
		return ledger.Transaction{}, s.fail("earn credits", fmt.Errorf("%w: %s", ErrReservedMissionRef, missionRef))
	}

	t, err := s.store.Earn(ctx, ledger.Entry{
		UserID:      userID,
		Currency:    currency,
		Amount:      amount,
		Description: description,
		MissionRef:  missionRef,
	})
	if err != nil {
		return ledger.Transaction{}, s.fail("earn credits", err)
	}

	return t, nil
}

func (s *RewardsService) SpendCredits(
	ctx context.Context,
	userID string,
	currency ledger.Currency,
	amount int64,
	description string,
) (ledger.Transaction, error) {
	t, err := s.store.Spend(ctx, ledger.Entry{
		UserID:      userID,
		Currency:    currency,
		Amount:      amount,
		Description: description,
	})
	if err != nil {
		return ledger.Transaction{}, s.fail("spend credits", err)
	}

	return t, nil
}

// ConvertLeafsToTreeCoins converts amount Leafs, or the largest convertible
// multiple of the ratio when amount is nil.
func (s *RewardsService) ConvertLeafsToTreeCoins(ctx context.Context, userID string, amount *int64) (conversion.Result, error) {
	res, err := s.conversion.Convert(ctx, userID, amount)
	if err != nil {
		return conversion.Result{}, s.fail("convert", err)
	}

	s.metrics.Converted()

	return res, nil
}

func (s *RewardsService) ConversionRatio() int64 {
	return s.conversion.Ratio()
}

func (s *RewardsService) ProgressMission(ctx context.Context, userID, missionID string, incrementBy int) (missions.State, error) {
	st, err := s.missions.Progress(ctx, userID, missionID, incrementBy)
	if err != nil {
		return missions.State{}, s.fail("progress mission", err)
	}

	return st, nil
}

func (s *RewardsService) CompleteMission(ctx context.Context, userID, missionID string) (missions.Completion, error) {
	c, err := s.missions.Complete(ctx, userID, missionID)
	if err != nil {
		return missions.Completion{}, s.fail("complete mission", err)
	}

	s.metrics.MissionCompleted(missionID)

	return c, nil
}

func (s *RewardsService) GetBalance(userID string) (ledger.Balance, error) {
	b, err := s.store.Balances(userID)
	if err != nil {
		return ledger.Balance{}, fmt.Errorf("get balance: %w", err)
	}

	return b, nil
}

// GetTransactions returns the user's history newest first; limit <= 0 means all.
func (s *RewardsService) GetTransactions(userID string, limit int) (iter.Seq[ledger.Transaction], error) {
	seq, err := s.store.Transactions(userID, limit)
	if err != nil {
		return nil, fmt.Errorf("get transactions: %w", err)
	}

	return seq, nil
}

func (s *RewardsService) GetCompletedMissions(userID string) ([]missions.Mission, error) {
	done, err := s.missions.Completed(userID)
	if err != nil {
		return nil, fmt.Errorf("get completed missions: %w", err)
	}

	return done, nil
}

func (s *RewardsService) Missions(userID string) ([]missions.State, error) {
	states, err := s.missions.Missions(userID)
	if err != nil {
		return nil, fmt.Errorf("list missions: %w", err)
	}

	return states, nil
}

func (s *RewardsService) CalculateEcoScore(userID string) (int64, error) {
	score, err := s.eco.Score(userID)
	if err != nil {
		return 0, fmt.Errorf("calculate eco score: %w", err)
	}

	return score, nil
}

func (s *RewardsService) CalculateEcoLevel(score int64) ecoscore.Level {
	return s.eco.Level(score)
}

type Eco struct {
	Points   int64          `json:"points"`
	Score    int64          `json:"score"`
	MaxScore int64          `json:"maxScore"`
	Level    ecoscore.Level `json:"level"`
}

func (s *RewardsService) EcoProfile(userID string) (Eco, error) {
	points, err := s.eco.Points(userID)
	if err != nil {
		return Eco{}, fmt.Errorf("eco profile: %w", err)
	}

	score := s.eco.ScoreFromPoints(points)

	return Eco{
		Points:   points,
		Score:    score,
		MaxScore: s.eco.MaxScore(),
		Level:    s.eco.Level(score),
	}, nil
}

// Summary is the dashboard view of one user.
type Summary struct {
	UserID            string               `json:"userId"`
	Balance           ledger.Balance       `json:"balance"`
	CompletedMissions int                  `json:"completedMissions"`
	TotalMissions     int                  `json:"totalMissions"`
	Eco               Eco                  `json:"eco"`
	Recent            []ledger.Transaction `json:"recentTransactions"`
}

func (s *RewardsService) Summary(userID string) (Summary, error) {
	bal, err := s.GetBalance(userID)
	if err != nil {
		return Summary{}, fmt.Errorf("summary: %w", err)
	}

	done, err := s.GetCompletedMissions(userID)
	if err != nil {
		return Summary{}, fmt.Errorf("summary: %w", err)
	}

	eco, err := s.EcoProfile(userID)
	if err != nil {
		return Summary{}, fmt.Errorf("summary: %w", err)
	}

	seq, err := s.GetTransactions(userID, recentTransactions)
	if err != nil {
		return Summary{}, fmt.Errorf("summary: %w", err)
	}

	return Summary{
		UserID:            userID,
		Balance:           bal,
		CompletedMissions: len(done),
		TotalMissions:     len(s.catalog.All()),
		Eco:               eco,
		Recent:            slices.Collect(seq),
	}, nil
}
