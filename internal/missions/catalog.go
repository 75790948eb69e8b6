package missions

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/EDWINLEGEND/opshare-cegg-sub000/internal/ledger"
)

const (
	Signup            = "SIGNUP"
	FirstListing      = "FIRST_LISTING"
	FirstRental       = "FIRST_RENTAL"
	CompleteProfile   = "COMPLETE_PROFILE"
	ShareItem         = "SHARE_ITEM"
	RentItem          = "RENT_ITEM"
	LeaveReview       = "LEAVE_REVIEW"
	ReferFriend       = "REFER_FRIEND"
	WeeklyActive      = "WEEKLY_ACTIVE"
	SustainableChoice = "SUSTAINABLE_CHOICE"
)

var knownIDs = []string{
	Signup, FirstListing, FirstRental, CompleteProfile, ShareItem,
	RentItem, LeaveReview, ReferFriend, WeeklyActive, SustainableChoice,
}

type RequirementKind string

const (
	KindSignup            RequirementKind = "signup"
	KindCreateListing     RequirementKind = "create_listing"
	KindCompleteRental    RequirementKind = "complete_rental"
	KindCompleteProfile   RequirementKind = "complete_profile"
	KindShareItem         RequirementKind = "share_item"
	KindRentItem          RequirementKind = "rent_item"
	KindLeaveReview       RequirementKind = "leave_review"
	KindReferFriend       RequirementKind = "refer_friend"
	KindWeeklyActive      RequirementKind = "weekly_active"
	KindSustainableChoice RequirementKind = "sustainable_choice"
)

func (k RequirementKind) valid() bool {
	switch k {
	case KindSignup, KindCreateListing, KindCompleteRental, KindCompleteProfile, KindShareItem,
		KindRentItem, KindLeaveReview, KindReferFriend, KindWeeklyActive, KindSustainableChoice:
		return true
	}

	return false
}

var ErrMalformedCatalog = errors.New("malformed mission catalog")

type Requirement struct {
	Kind        RequirementKind `json:"kind"`
	TargetCount int             `json:"targetCount"`
}

// Mission is a catalog entry. Rewards are in ledger minor units.
type Mission struct {
	ID             string      `json:"id"`
	Title          string      `json:"title"`
	Description    string      `json:"description"`
	LeafReward     int64       `json:"leafReward"`
	TreeCoinReward int64       `json:"treeCoinReward"`
	Requirement    Requirement `json:"requirement"`
	Sustainable    bool        `json:"sustainable"`
	Repeatable     bool        `json:"repeatable"`
}

type rawCatalog struct {
	Missions []rawMission `yaml:"missions"`
}

type rawMission struct {
	ID             string `yaml:"id"`
	Title          string `yaml:"title"`
	Description    string `yaml:"description"`
	LeafReward     int64  `yaml:"leafReward"`
	TreeCoinReward string `yaml:"treeCoinReward"`
	Requirement    struct {
		Kind        string `yaml:"kind"`
		TargetCount int    `yaml:"targetCount"`
	} `yaml:"requirement"`
	Sustainable bool `yaml:"sustainable"`
	Repeatable  bool `yaml:"repeatable"`
}

// Catalog is the immutable, ordered set of missions.
type Catalog struct {
	missions []Mission
	byID     map[string]int
}

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// DefaultCatalog parses the embedded seed catalog.
func DefaultCatalog() (*Catalog, error) {
	return LoadCatalog(defaultCatalogYAML)
}

// MustDefaultCatalog is DefaultCatalog for program start-up; a broken seed
// catalog is not something the process can run with.
func MustDefaultCatalog() *Catalog {
	c, err := DefaultCatalog()
	if err != nil {
		panic(err)
	}

	return c
}

func LoadCatalog(data []byte) (*Catalog, error) {
	var raw rawCatalog

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	err := dec.Decode(&raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedCatalog, err)
	}

	if len(raw.Missions) == 0 {
		return nil, fmt.Errorf("%w: no missions", ErrMalformedCatalog)
	}

	c := &Catalog{byID: make(map[string]int, len(raw.Missions))}

	for i, rm := range raw.Missions {
		m, err := rm.toMission()
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d: %w", ErrMalformedCatalog, i, err)
		}

		if _, dup := c.byID[m.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate mission %s", ErrMalformedCatalog, m.ID)
		}

		c.byID[m.ID] = len(c.missions)
		c.missions = append(c.missions, m)
	}

	return c, nil
}

func (rm rawMission) toMission() (Mission, error) {
	id := strings.TrimSpace(rm.ID)
	if !slices.Contains(knownIDs, id) {
		return Mission{}, fmt.Errorf("unknown mission id %q", rm.ID)
	}

	if strings.TrimSpace(rm.Title) == "" {
		return Mission{}, fmt.Errorf("mission %s has no title", id)
	}

	kind := RequirementKind(rm.Requirement.Kind)
	if !kind.valid() {
		return Mission{}, fmt.Errorf("mission %s has unknown requirement kind %q", id, rm.Requirement.Kind)
	}

	if rm.Requirement.TargetCount <= 0 {
		return Mission{}, fmt.Errorf("mission %s target must be positive", id)
	}

	if rm.LeafReward < 0 {
		return Mission{}, fmt.Errorf("mission %s has negative leaf reward", id)
	}

	var treeCoins int64
	if rm.TreeCoinReward != "" {
		var err error

		treeCoins, err = ledger.ParseAmount(ledger.TreeCoin, rm.TreeCoinReward)
		if err != nil {
			return Mission{}, fmt.Errorf("mission %s tree coin reward: %w", id, err)
		}
	}

	if rm.LeafReward == 0 && treeCoins == 0 {
		return Mission{}, fmt.Errorf("mission %s grants no reward", id)
	}

	return Mission{
		ID:             id,
		Title:          rm.Title,
		Description:    rm.Description,
		LeafReward:     rm.LeafReward,
		TreeCoinReward: treeCoins,
		Requirement:    Requirement{Kind: kind, TargetCount: rm.Requirement.TargetCount},
		Sustainable:    rm.Sustainable,
		Repeatable:     rm.Repeatable,
	}, nil
}

func (c *Catalog) Get(id string) (Mission, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Mission{}, false
	}

	return c.missions[i], true
}

// All returns the missions in catalog order.
func (c *Catalog) All() []Mission {
	return slices.Clone(c.missions)
}

// IsSustainable reports whether missionRef names a mission in the
// eco-weighted subset.
func (c *Catalog) IsSustainable(missionRef string) bool {
	m, ok := c.Get(missionRef)

	return ok && m.Sustainable
}
