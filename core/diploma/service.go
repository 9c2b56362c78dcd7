package diploma

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/mail"
	"path"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/congress/core"
)

type Service struct {
	repo      Repository
	renderers map[string]Renderer // {format: Renderer}
	storage   core.FileStorage
	mailSvc   core.EmailService
	logger    core.Logger
	conf      *core.Config
	nowFunc   func() time.Time

	genMu sync.Mutex // one generation run at a time
}

func NewService(
	repo Repository,
	renderers map[string]Renderer,
	storage core.FileStorage,
	mailSvc core.EmailService,
	logger core.Logger,
	conf *core.Config,
) *Service {
	return &Service{
		repo:      repo,
		renderers: renderers,
		storage:   storage,
		mailSvc:   mailSvc,
		logger:    logger,
		conf:      conf,
		nowFunc:   time.Now,
	}
}

// Generate scans for participants and winners without diplomas and issues them one by one.
// Running it again on an unchanged database issues nothing.
func (svc *Service) Generate(ctx context.Context) (Report, error) {
	svc.genMu.Lock()
	defer svc.genMu.Unlock()

	report := Report{Issued: make([]Diploma, 0)}

	participants, err := svc.repo.FindParticipationCandidates(ctx, svc.nowFunc().UTC())
	if err != nil {
		return report, errors.Wrap(err, "scanning finished activities")
	}
	winners, err := svc.repo.FindWinnerCandidates(ctx)
	if err != nil {
		return report, errors.Wrap(err, "scanning competition winners")
	}

	candidates := make([]Candidate, 0, len(participants)+len(winners))
	candidates = append(candidates, participants...)
	candidates = append(candidates, winners...)
	for _, c := range candidates {
		if err = ctx.Err(); err != nil {
			return report, err
		}

		d, issued, err := svc.Issue(ctx, c)
		switch {
		case err != nil:
			report.Failed++
			svc.logger.Error(fmt.Sprintf("issuing %s diploma to %s for %s: %v", c.Kind, c.UserID, c.ActivityID, err), err)
		case !issued:
			report.Skipped++
		default:
			report.Issued = append(report.Issued, d)
		}
	}
	return report, nil
}

// Issue claims the candidate's diploma, renders and stores its file.
// issued is false when the diploma already exists. On failure the claim is released.
func (svc *Service) Issue(ctx context.Context, c Candidate) (d Diploma, issued bool, err error) {
	renderer, ok := svc.renderers[svc.conf.Diploma.Format]
	if !ok {
		return Diploma{}, false, errors.Errorf("no renderer for format %q", svc.conf.Diploma.Format)
	}

	now := svc.nowFunc().UTC().Truncate(time.Second)
	d, ok, err = svc.repo.ClaimDiploma(ctx, Diploma{
		UserID:           c.UserID,
		ActivityID:       c.ActivityID,
		Kind:             c.Kind,
		Place:            c.Place,
		VerificationCode: MakeCode(svc.conf.SecretKey, c.UserID, c.ActivityID, c.Kind),
		Format:           svc.conf.Diploma.Format,
		StorageBackend:   svc.storage.Backend(),
		IssuedAt:         now,
	})
	if err != nil {
		return Diploma{}, false, errors.Wrap(err, "claiming diploma")
	}
	if !ok {
		return Diploma{}, false, nil
	}
	d.UserName = c.UserName
	d.UserEmail = c.UserEmail
	d.ActivityTitle = c.ActivityTitle

	claimID := d.ID
	defer func() {
		if err != nil {
			if rErr := svc.repo.DeleteDiploma(context.WithoutCancel(ctx), claimID); rErr != nil {
				err = errors.Wrapf(err, "releasing claim: %v", rErr)
			}
		}
	}()

	data, err := renderer.Render(svc.content(c, d))
	if err != nil {
		return Diploma{}, false, errors.Wrap(err, "rendering diploma")
	}

	key := path.Join("diplomas", c.ActivityID, d.VerificationCode+renderer.Ext())
	if err = svc.storage.Save(ctx, key, bytes.NewReader(data), int64(len(data)), renderer.ContentType()); err != nil {
		return Diploma{}, false, errors.Wrap(err, "storing diploma")
	}
	if err = svc.repo.SetDiplomaFile(ctx, d.ID, key); err != nil {
		_ = svc.storage.Delete(context.WithoutCancel(ctx), key)
		return Diploma{}, false, errors.Wrap(err, "saving diploma file key")
	}
	d.FileKey = key

	if svc.conf.Diploma.AutoEmail && d.UserEmail != "" {
		// the diploma stays issued: it can be resent
		if mErr := svc.Email(ctx, &d); mErr != nil {
			svc.logger.Error(fmt.Sprintf("emailing diploma %s: %v", d.ID, mErr), mErr)
		}
	}
	return d, true, nil
}

func (svc *Service) content(c Candidate, d Diploma) Content {
	ct := Content{
		EventName: svc.conf.EventName,
		Name:      c.UserName,
		Code:      d.VerificationCode,
		VerifyURL: svc.VerifyURL(d.VerificationCode),
		IssuedAt:  d.IssuedAt,
	}
	switch c.Kind {
	case KindPlace:
		ct.Title = "Diploma"
		ct.Subtitle = fmt.Sprintf("for winning the %s place in the competition \"%s\"", Ordinal(c.Place), c.ActivityTitle)
	case KindCompetition:
		ct.Title = "Certificate of Participation"
		ct.Subtitle = fmt.Sprintf("for taking part in the competition \"%s\"", c.ActivityTitle)
	default:
		ct.Title = "Certificate of Attendance"
		ct.Subtitle = fmt.Sprintf("for attending the workshop \"%s\"", c.ActivityTitle)
	}
	return ct
}

// VerifyURL is the public page where a diploma can be checked.
func (svc *Service) VerifyURL(code string) string {
	return svc.conf.FrontendBaseURL + "/diplomas/verify/" + code
}

// Email sends the diploma's file to its owner.
func (svc *Service) Email(ctx context.Context, d *Diploma) error {
	if d.UserEmail == "" {
		return core.NewValidationError(errors.New("the diploma owner has no email address"))
	}
	rc, contentType, err := svc.Open(ctx, *d)
	if err != nil {
		return err
	}
	//goland:noinspection GoUnhandledErrorResult
	defer rc.Close()

	msg := &core.EmailMessage{
		To:           []mail.Address{{Name: d.UserName, Address: d.UserEmail}},
		Subject:      "Your diploma: " + d.ActivityTitle,
		TemplateName: "diploma",
		TemplateData: map[string]string{
			"AppName":   svc.conf.AppName,
			"Name":      d.UserName,
			"Title":     d.ActivityTitle,
			"Subtitle":  svc.conf.EventName,
			"VerifyURL": svc.VerifyURL(d.VerificationCode),
			"Code":      d.VerificationCode,
		},
	}
	if err = msg.Attach(rc, Filename(*d), contentType); err != nil {
		return errors.Wrap(err, "attaching diploma")
	}
	// flagged only once the provider accepted it
	if err = svc.mailSvc.Send(msg); err != nil {
		return errors.Wrap(err, "sending diploma email")
	}

	now := svc.nowFunc().UTC().Truncate(time.Second)
	if err = svc.repo.SetDiplomaEmailed(ctx, d.ID, now); err != nil {
		return errors.Wrap(err, "flagging diploma as emailed")
	}
	d.EmailedAt = now
	return nil
}

// Open streams the diploma's file from the storage backend.
func (svc *Service) Open(ctx context.Context, d Diploma) (io.ReadCloser, string, error) {
	if !d.IsReady() {
		return nil, "", ErrNotFound
	}
	if d.StorageBackend != svc.storage.Backend() {
		// written before the storage configuration changed
		return nil, "", ErrNotFound
	}
	rc, err := svc.storage.Open(ctx, d.FileKey)
	if err != nil {
		if errors.Cause(err) == core.ErrFileNotFound {
			return nil, "", ErrNotFound
		}
		return nil, "", errors.Wrap(err, "opening diploma file")
	}
	return rc, ContentType(d.Format), nil
}

// Verify finds the diploma matching a (user provided) verification code.
func (svc *Service) Verify(ctx context.Context, code string) (Diploma, error) {
	code = NormalizeCode(code)
	if code == "" {
		return Diploma{}, ErrNotFound
	}
	d, err := svc.repo.GetDiploma(ctx, GetFilter{Code: code})
	if err != nil {
		return Diploma{}, err
	}
	if !d.IsReady() { // issuance in progress
		return Diploma{}, ErrNotFound
	}
	return d, nil
}

func (svc *Service) GetByID(ctx context.Context, id string) (Diploma, error) {
	return svc.repo.GetDiploma(ctx, GetFilter{ID: id})
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter) ([]Diploma, error) {
	filter.Kind = core.CleanString(filter.Kind, true /* lower */)
	return svc.repo.QueryDiplomas(ctx, filter)
}

// Run generates diplomas every `interval` until ctx is done.
func (svc *Service) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report, err := svc.Generate(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				svc.logger.Error(fmt.Sprintf("generating diplomas: %v", err), err)
				continue
			}
			if len(report.Issued) > 0 || report.Failed > 0 {
				svc.logger.Info(fmt.Sprintf("diplomas: %d issued, %d failed", len(report.Issued), report.Failed))
			}
		}
	}
}

func ContentType(format string) string {
	if format == FormatPNG {
		return "image/png"
	}
	return "application/pdf"
}

// Filename is the name under which a diploma is downloaded or attached.
func Filename(d Diploma) string {
	return fmt.Sprintf("diploma-%s.%s", d.VerificationCode, d.Format)
}

// Ordinal formats a place: 1st, 2nd, 3rd, 4th..
func Ordinal(n int) string {
	suffix := "th"
	switch n % 100 {
	case 11, 12, 13:
	default:
		switch n % 10 {
		case 1:
			suffix = "st"
		case 2:
			suffix = "nd"
		case 3:
			suffix = "rd"
		}
	}
	return fmt.Sprintf("%d%s", n, suffix)
}
