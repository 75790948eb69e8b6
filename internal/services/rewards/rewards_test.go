package rewards

import (
	"errors"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/EDWINLEGEND/opshare-cegg-sub000/internal/ledger"
	"github.com/EDWINLEGEND/opshare-cegg-sub000/internal/missions"
	memsnapshots "github.com/EDWINLEGEND/opshare-cegg-sub000/internal/repos/snapshots/memory"
)

type countingMetrics struct {
	converted int
	completed []string
	failed    []string
}

func (m *countingMetrics) Converted()                 { m.converted++ }
func (m *countingMetrics) MissionCompleted(id string) { m.completed = append(m.completed, id) }
func (m *countingMetrics) Failed(op string, _ error)  { m.failed = append(m.failed, op) }

func newTestService(t *testing.T) (*RewardsService, *memsnapshots.Repo, *countingMetrics) {
	t.Helper()

	repo := memsnapshots.New()
	store := ledger.New(repo)
	require.NoError(t, store.Open(t.Context()))

	m := &countingMetrics{}
	svc, err := New(store, missions.MustDefaultCatalog(), DefaultConfig(), WithMetrics(m))
	require.NoError(t, err)

	return svc, repo, m
}

func history(t *testing.T, svc *RewardsService, userID string) []ledger.Transaction {
	t.Helper()

	seq, err := svc.GetTransactions(userID, 0)
	require.NoError(t, err)

	return slices.Collect(seq)
}

func TestInitializeUser_CompletesSignup(t *testing.T) {
	t.Parallel()

	svc, _, m := newTestService(t)

	res, err := svc.InitializeUser(t.Context(), "u1")
	require.NoError(t, err)
	require.True(t, res.Created)
	require.Equal(t, int64(100), res.Balance.Leaf)

	txns := history(t, svc, "u1")
	require.Len(t, txns, 1)
	require.Equal(t, missions.Signup, txns[0].MissionRef)
	require.Equal(t, ledger.KindEarned, txns[0].Kind())

	done, err := svc.GetCompletedMissions("u1")
	require.NoError(t, err)
	require.Len(t, done, 1)
	require.Equal(t, missions.Signup, done[0].ID)
	require.Equal(t, []string{missions.Signup}, m.completed)
}

func TestInitializeUser_Idempotent(t *testing.T) {
	t.Parallel()

	svc, repo, _ := newTestService(t)

	_, err := svc.InitializeUser(t.Context(), "u1")
	require.NoError(t, err)

	saves := repo.Saves()

	res, err := svc.InitializeUser(t.Context(), "u1")
	require.NoError(t, err)
	require.False(t, res.Created)
	require.Equal(t, int64(100), res.Balance.Leaf)
	require.Len(t, history(t, svc, "u1"), 1)
	require.Equal(t, saves, repo.Saves())
}

func TestInitializeUser_PersistenceFailureLeavesNoAccount(t *testing.T) {
	t.Parallel()

	svc, repo, m := newTestService(t)
	repo.FailWith(errors.New("offline"))

	_, err := svc.InitializeUser(t.Context(), "u1")
	require.ErrorIs(t, err, ledger.ErrPersistenceWriteFailed)
	require.Equal(t, []string{"initialize user"}, m.failed)

	_, err = svc.GetBalance("u1")
	require.ErrorIs(t, err, ledger.ErrUnknownUser)
}

func TestSpendCredits_InsufficientBalance(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestService(t)

	_, err := svc.InitializeUser(t.Context(), "u1")
	require.NoError(t, err)

	_, err = svc.EarnCredits(t.Context(), "u1", ledger.Leaf, 400, "bonus", "")
	require.NoError(t, err)

	_, err = svc.SpendCredits(t.Context(), "u1", ledger.Leaf, 10_000, "big purchase")
	require.ErrorIs(t, err, ledger.ErrInsufficientBalance)

	bal, err := svc.GetBalance("u1")
	require.NoError(t, err)
	require.Equal(t, int64(500), bal.Leaf)
	require.Len(t, history(t, svc, "u1"), 2)
}

func TestEarnCredits_RejectsCatalogMissionRef(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestService(t)

	_, err := svc.InitializeUser(t.Context(), "u1")
	require.NoError(t, err)

	_, err = svc.EarnCredits(t.Context(), "u1", ledger.Leaf, 250, "sneaky", missions.SustainableChoice)
	require.ErrorIs(t, err, ErrReservedMissionRef)

	_, err = svc.EarnCredits(t.Context(), "u1", ledger.Leaf, 20, "event bonus", "SPRING_EVENT")
	require.NoError(t, err)
}

func TestConvertLeafsToTreeCoins(t *testing.T) {
	t.Parallel()

	svc, _, m := newTestService(t)

	_, err := svc.InitializeUser(t.Context(), "u1")
	require.NoError(t, err)
	_, err = svc.EarnCredits(t.Context(), "u1", ledger.Leaf, 2_400, "top up", "")
	require.NoError(t, err)

	amount := int64(2_000)
	res, err := svc.ConvertLeafsToTreeCoins(t.Context(), "u1", &amount)
	require.NoError(t, err)
	require.Equal(t, int64(2_000), res.LeafsSpent)
	require.Equal(t, "2.000", ledger.FormatAmount(ledger.TreeCoin, res.TreeCoinsEarned))

	bal, err := svc.GetBalance("u1")
	require.NoError(t, err)
	require.Equal(t, ledger.Balance{Leaf: 500, TreeCoin: 2_000}, bal)
	require.Equal(t, 1, m.converted)

	bad := int64(1_500)
	_, err = svc.ConvertLeafsToTreeCoins(t.Context(), "u1", &bad)
	require.ErrorIs(t, err, ledger.ErrInvalidAmount)
}

func TestEcoScoreFromSustainableMissions(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestService(t)

	_, err := svc.InitializeUser(t.Context(), "u3")
	require.NoError(t, err)

	_, err = svc.ProgressMission(t.Context(), "u3", missions.SustainableChoice, 5)
	require.NoError(t, err)
	_, err = svc.CompleteMission(t.Context(), "u3", missions.SustainableChoice)
	require.NoError(t, err)

	score, err := svc.CalculateEcoScore("u3")
	require.NoError(t, err)
	require.Equal(t, int64(50), score)
	require.Equal(t, "Sapling", svc.CalculateEcoLevel(score).Title)

	eco, err := svc.EcoProfile("u3")
	require.NoError(t, err)
	require.Equal(t, int64(250), eco.Points)
	require.Equal(t, int64(100), eco.MaxScore)
}

func TestSummary(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestService(t)

	_, err := svc.InitializeUser(t.Context(), "u1")
	require.NoError(t, err)

	for range 6 {
		_, err = svc.EarnCredits(t.Context(), "u1", ledger.Leaf, 10, "daily", "")
		require.NoError(t, err)
	}

	sum, err := svc.Summary("u1")
	require.NoError(t, err)
	require.Equal(t, int64(160), sum.Balance.Leaf)
	require.Equal(t, 1, sum.CompletedMissions)
	require.Equal(t, 10, sum.TotalMissions)
	require.Len(t, sum.Recent, 5)
	require.Equal(t, "daily", sum.Recent[0].Description)
	require.Equal(t, "Seedling", sum.Eco.Level.Title)

	_, err = svc.Summary("ghost")
	require.ErrorIs(t, err, ledger.ErrUnknownUser)
}

func TestUninitializedUserIsRejected(t *testing.T) {
	t.Parallel()

	svc, _, _ := newTestService(t)

	_, err := svc.EarnCredits(t.Context(), "ghost", ledger.Leaf, 1, "x", "")
	require.ErrorIs(t, err, ledger.ErrUnknownUser)

	_, err = svc.ProgressMission(t.Context(), "ghost", missions.ShareItem, 1)
	require.ErrorIs(t, err, ledger.ErrUnknownUser)

	_, err = svc.CalculateEcoScore("ghost")
	require.ErrorIs(t, err, ledger.ErrUnknownUser)

	_, err = svc.Missions("ghost")
	require.ErrorIs(t, err, ledger.ErrUnknownUser)
}

func TestNew_RejectsBadConfig(t *testing.T) {
	t.Parallel()

	store := ledger.New(memsnapshots.New())
	cfg := DefaultConfig()
	cfg.ConversionRatio = 0

	_, err := New(store, missions.MustDefaultCatalog(), cfg)
	require.Error(t, err)
}
