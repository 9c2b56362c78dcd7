package diploma

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/trezcool/congress/core"
)

// fakeRepo keeps diplomas in memory and derives candidates from `participants` and `winners`.
type fakeRepo struct {
	mu           sync.Mutex
	participants []Candidate
	winners      []Candidate
	diplomas     map[string]Diploma // {id: Diploma}
	seq          int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{diplomas: make(map[string]Diploma)}
}

func (r *fakeRepo) has(c Candidate) bool {
	for _, d := range r.diplomas {
		if d.UserID == c.UserID && d.ActivityID == c.ActivityID && d.Kind == c.Kind {
			return true
		}
	}
	return false
}

func (r *fakeRepo) filter(cands []Candidate) []Candidate {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := make([]Candidate, 0, len(cands))
	for _, c := range cands {
		if !r.has(c) {
			res = append(res, c)
		}
	}
	return res
}

func (r *fakeRepo) FindParticipationCandidates(context.Context, time.Time) ([]Candidate, error) {
	return r.filter(r.participants), nil
}

func (r *fakeRepo) FindWinnerCandidates(context.Context) ([]Candidate, error) {
	return r.filter(r.winners), nil
}

func (r *fakeRepo) ClaimDiploma(_ context.Context, d Diploma) (Diploma, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, other := range r.diplomas {
		if other.VerificationCode == d.VerificationCode {
			return Diploma{}, false, nil
		}
	}
	r.seq++
	d.ID = string(rune('a' + r.seq))
	r.diplomas[d.ID] = d
	return d, true, nil
}

func (r *fakeRepo) update(id string, fn func(d *Diploma)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.diplomas[id]
	if !ok {
		return ErrNotFound
	}
	fn(&d)
	r.diplomas[id] = d
	return nil
}

func (r *fakeRepo) SetDiplomaFile(_ context.Context, id, key string) error {
	return r.update(id, func(d *Diploma) { d.FileKey = key })
}

func (r *fakeRepo) SetDiplomaEmailed(_ context.Context, id string, at time.Time) error {
	return r.update(id, func(d *Diploma) { d.EmailedAt = at })
}

func (r *fakeRepo) DeleteDiploma(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.diplomas, id)
	return nil
}

func (r *fakeRepo) GetDiploma(_ context.Context, filter GetFilter) (Diploma, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.diplomas {
		if d.ID == filter.ID || (filter.Code != "" && d.VerificationCode == filter.Code) {
			return d, nil
		}
	}
	return Diploma{}, ErrNotFound
}

func (r *fakeRepo) QueryDiplomas(context.Context, QueryFilter) ([]Diploma, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := make([]Diploma, 0, len(r.diplomas))
	for _, d := range r.diplomas {
		res = append(res, d)
	}
	return res, nil
}

func (r *fakeRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.diplomas)
}

type fakeRenderer struct {
	mu       sync.Mutex
	rendered []Content
	failFor  string // user name
}

func (fr *fakeRenderer) Render(c Content) ([]byte, error) {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	if c.Name == fr.failFor {
		return nil, errors.New("boom")
	}
	fr.rendered = append(fr.rendered, c)
	return []byte("%PDF " + c.Name), nil
}

func (fr *fakeRenderer) ContentType() string { return "application/pdf" }
func (fr *fakeRenderer) Ext() string         { return ".pdf" }

type memStorage struct {
	mu    sync.Mutex
	files map[string][]byte
}

func (s *memStorage) Save(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[key] = data
	return nil
}

func (s *memStorage) Open(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.files[key]
	if !ok {
		return nil, core.ErrFileNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *memStorage) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.files, key)
	return nil
}

func (s *memStorage) Backend() string { return "memory" }

type mailBox struct {
	mu      sync.Mutex
	sent    []*core.EmailMessage
	failErr error
}

func (mb *mailBox) SendMessages(messages ...*core.EmailMessage) {
	for _, msg := range messages {
		_ = mb.Send(msg)
	}
}

func (mb *mailBox) Send(msg *core.EmailMessage) error {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if mb.failErr != nil {
		return mb.failErr
	}
	mb.sent = append(mb.sent, msg)
	return nil
}

func (mb *mailBox) Wait() {}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

type fixture struct {
	svc      *Service
	repo     *fakeRepo
	renderer *fakeRenderer
	storage  *memStorage
	mail     *mailBox
}

func newFixture(t *testing.T, autoEmail bool) fixture {
	t.Helper()
	conf := core.NewTestConfig(t.TempDir())
	conf.Diploma.AutoEmail = autoEmail

	f := fixture{
		repo:     newFakeRepo(),
		renderer: new(fakeRenderer),
		storage:  &memStorage{files: make(map[string][]byte)},
		mail:     new(mailBox),
	}
	f.svc = NewService(f.repo, map[string]Renderer{FormatPDF: f.renderer}, f.storage, f.mail, nopLogger{}, conf)
	f.repo.participants = []Candidate{
		{UserID: "u1", UserName: "Ada", UserEmail: "ada@test.test", ActivityID: "w1", ActivityTitle: "Go 101", Kind: KindWorkshop},
		{UserID: "u2", UserName: "Bob", ActivityID: "c1", ActivityTitle: "Hackathon", Kind: KindCompetition},
	}
	f.repo.winners = []Candidate{
		{UserID: "u2", UserName: "Bob", ActivityID: "c1", ActivityTitle: "Hackathon", Kind: KindPlace, Place: 2},
	}
	return f
}

func TestService_Generate(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	report, err := f.svc.Generate(ctx)
	require.NoError(t, err)
	assert.Len(t, report.Issued, 3)
	assert.Zero(t, report.Failed)
	assert.Len(t, f.storage.files, 3)

	for _, d := range report.Issued {
		assert.True(t, d.IsReady())
		assert.Equal(t, MakeCode("secret", d.UserID, d.ActivityID, d.Kind), d.VerificationCode)
		assert.Equal(t, "memory", d.StorageBackend)
		assert.Equal(t, "diplomas/"+d.ActivityID+"/"+d.VerificationCode+".pdf", d.FileKey)
	}

	subtitles := make([]string, 0, len(f.renderer.rendered))
	for _, c := range f.renderer.rendered {
		subtitles = append(subtitles, c.Subtitle)
		assert.Equal(t, "Test Congress", c.EventName)
		assert.Contains(t, c.VerifyURL, "/diplomas/verify/"+c.Code)
	}
	assert.ElementsMatch(t, []string{
		`for attending the workshop "Go 101"`,
		`for taking part in the competition "Hackathon"`,
		`for winning the 2nd place in the competition "Hackathon"`,
	}, subtitles)

	// idempotent
	report, err = f.svc.Generate(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.Issued)
	assert.Equal(t, 3, f.repo.count())
}

func TestService_Generate_ReleasesClaimOnFailure(t *testing.T) {
	f := newFixture(t, false)
	f.renderer.failFor = "Bob"
	ctx := context.Background()

	report, err := f.svc.Generate(ctx)
	require.NoError(t, err)
	assert.Len(t, report.Issued, 1)
	assert.Equal(t, 2, report.Failed)
	assert.Equal(t, 1, f.repo.count(), "failed claims are released")

	// retried on the next run
	f.renderer.failFor = ""
	report, err = f.svc.Generate(ctx)
	require.NoError(t, err)
	assert.Len(t, report.Issued, 2)
	assert.Equal(t, 3, f.repo.count())
}

func TestService_Generate_SkipsClaimedCode(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	// a concurrent run claimed Ada's diploma between the scan and the claim
	c := f.repo.participants[0]
	_, ok, err := f.repo.ClaimDiploma(ctx, Diploma{
		UserID:           "someone-else",
		ActivityID:       c.ActivityID,
		Kind:             c.Kind,
		VerificationCode: MakeCode("secret", c.UserID, c.ActivityID, c.Kind),
	})
	require.NoError(t, err)
	require.True(t, ok)

	report, err := f.svc.Generate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Skipped)
	assert.Len(t, report.Issued, 2)
}

func TestService_AutoEmail(t *testing.T) {
	f := newFixture(t, true)

	report, err := f.svc.Generate(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Issued, 3)

	// only Ada has an email address
	require.Len(t, f.mail.sent, 1)
	msg := f.mail.sent[0]
	assert.Equal(t, "ada@test.test", msg.To[0].Address)
	assert.Equal(t, "diploma", msg.TemplateName)
	require.True(t, msg.HasAttachments())
	assert.Equal(t, "application/pdf", msg.Attachments[0].ContentType)

	for _, d := range report.Issued {
		if d.UserID == "u1" {
			assert.False(t, d.EmailedAt.IsZero())
		} else {
			assert.True(t, d.EmailedAt.IsZero())
		}
	}
}

func TestService_AutoEmail_SendFailure(t *testing.T) {
	f := newFixture(t, true)
	f.mail.failErr = errors.New("provider down")

	report, err := f.svc.Generate(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Issued, 3, "a failed email does not un-issue the diploma")
	assert.Empty(t, f.mail.sent)
	for _, d := range report.Issued {
		assert.True(t, d.EmailedAt.IsZero(), "%s flagged as emailed", d.UserName)
	}

	// resend once the provider is back
	f.mail.failErr = nil
	for _, d := range report.Issued {
		if d.UserID != "u1" {
			continue
		}
		require.NoError(t, f.svc.Email(context.Background(), &d))
		assert.False(t, d.EmailedAt.IsZero())
	}
	assert.Len(t, f.mail.sent, 1)
}

func TestService_VerifyAndOpen(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	report, err := f.svc.Generate(ctx)
	require.NoError(t, err)
	issued := report.Issued[0]

	d, err := f.svc.Verify(ctx, "  "+issued.VerificationCode+" ")
	require.NoError(t, err)
	assert.Equal(t, issued.ID, d.ID)

	_, err = f.svc.Verify(ctx, "0000-0000-0000")
	assert.True(t, core.IsNotFound(err))
	_, err = f.svc.Verify(ctx, "nope")
	assert.True(t, core.IsNotFound(err))

	rc, ct, err := f.svc.Open(ctx, d)
	require.NoError(t, err)
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	assert.Equal(t, "application/pdf", ct)
	assert.Contains(t, string(data), "%PDF")

	_, _, err = f.svc.Open(ctx, Diploma{Format: FormatPDF})
	assert.True(t, core.IsNotFound(err))

	// stored by another backend
	moved := d
	moved.StorageBackend = "blob"
	_, _, err = f.svc.Open(ctx, moved)
	assert.True(t, core.IsNotFound(err))
}

func TestService_UnknownFormat(t *testing.T) {
	f := newFixture(t, false)
	f.svc.conf.Diploma.Format = "svg"

	report, err := f.svc.Generate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, report.Failed)
	assert.Zero(t, f.repo.count())
}

func TestService_Run(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newFixture(t, false)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		f.svc.Run(ctx, 10*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool { return f.repo.count() == 3 }, time.Second, 10*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestOrdinal(t *testing.T) {
	tests := map[int]string{1: "1st", 2: "2nd", 3: "3rd", 4: "4th", 11: "11th", 12: "12th", 13: "13th", 21: "21st", 102: "102nd"}
	for n, want := range tests {
		assert.Equal(t, want, Ordinal(n))
	}
}
