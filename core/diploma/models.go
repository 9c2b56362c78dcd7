package diploma

import (
	"context"
	"time"

	"github.com/trezcool/congress/core"
	"github.com/trezcool/congress/core/activity"
)

// Kinds: participation diplomas are named after the activity kind.
const (
	KindWorkshop    = activity.KindWorkshop
	KindCompetition = activity.KindCompetition
	KindPlace       = "place" // top 3 of a competition
)

// Formats
const (
	FormatPDF = "pdf"
	FormatPNG = "png"
)

// MaxPlace is the lowest place awarded a place diploma.
const MaxPlace = 3

var ErrNotFound = core.NewNotFoundError("diploma")

type Diploma struct {
	ID               string    `json:"id"`
	UserID           string    `json:"user_id"`
	ActivityID       string    `json:"activity_id"`
	Kind             string    `json:"kind"`
	Place            int       `json:"place,omitempty"`
	VerificationCode string    `json:"verification_code"`
	Format           string    `json:"format"`
	StorageBackend   string    `json:"storage_backend"`
	FileKey          string    `json:"-"`
	IssuedAt         time.Time `json:"issued_at"`
	EmailedAt        time.Time `json:"emailed_at,omitempty"`

	// joined
	UserName      string `json:"user_name"`
	UserEmail     string `json:"-"`
	ActivityTitle string `json:"activity_title"`
}

// IsReady tells whether the diploma's file has been stored.
func (d Diploma) IsReady() bool { return d.FileKey != "" }

// Candidate is a (participant, activity, kind) triple eligible for a diploma that has none yet.
type Candidate struct {
	UserID        string
	UserName      string
	UserEmail     string
	ActivityID    string
	ActivityTitle string
	ActivityKind  string
	EndsAt        time.Time
	Kind          string
	Place         int
}

// Content is what gets printed on a diploma.
type Content struct {
	EventName string
	Name      string
	Title     string
	Subtitle  string
	Code      string
	VerifyURL string
	IssuedAt  time.Time
}

// Renderer turns a diploma's Content into a file.
type Renderer interface {
	Render(c Content) ([]byte, error)
	ContentType() string
	Ext() string
}

type QueryFilter struct {
	UserID     string `query:"user_id"`
	ActivityID string `query:"activity_id"`
	Kind       string `query:"kind"`
}

type GetFilter struct {
	ID   string
	Code string
}

type Repository interface {
	// FindParticipationCandidates lists participants of activities finished before `now` who attended
	// (or, for competitions, got a result) and have no participation diploma for it.
	FindParticipationCandidates(ctx context.Context, now time.Time) ([]Candidate, error)
	// FindWinnerCandidates lists the top 3 of published competitions who have no place diploma.
	FindWinnerCandidates(ctx context.Context) ([]Candidate, error)
	// ClaimDiploma inserts `d` (with a new ID) unless a diploma with the same code or
	// (user, activity, kind) exists; ok is false then.
	ClaimDiploma(ctx context.Context, d Diploma) (claimed Diploma, ok bool, err error)
	SetDiplomaFile(ctx context.Context, id, fileKey string) error
	SetDiplomaEmailed(ctx context.Context, id string, at time.Time) error
	DeleteDiploma(ctx context.Context, id string) error
	GetDiploma(ctx context.Context, filter GetFilter) (Diploma, error)
	QueryDiplomas(ctx context.Context, filter QueryFilter) ([]Diploma, error)
}

// Report sums up a generation run.
type Report struct {
	Issued  []Diploma `json:"issued"`
	Skipped int       `json:"skipped"` // claimed by a concurrent run
	Failed  int       `json:"failed"`
}
