// Package verification matches an uploaded document against the ledger
// records of a claimed owner.
//
// The coordinator hashes the upload, enumerates the owner's accepted documents
// from the metadata store and probes each one with verifyCredential through a
// single session opened under the caller's own identity. The first active
// record whose hash matches wins. Candidates missing from the ledger are
// skipped, so drift between the two stores never aborts a scan.
package verification

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"legitify/contracts/ledger"
	"legitify/internal/audit"
	"legitify/internal/documents/models"
	"legitify/internal/documents/store"
	"legitify/internal/ledger/session"
	"legitify/internal/verification/metrics"
	"legitify/pkg/digest"
	dErrors "legitify/pkg/domain-errors"
	"legitify/pkg/requestcontext"
)

// User-facing messages.
const (
	MessageVerified     = "Document verified successfully"
	MessageNoMatch      = "No matching credential found"
	MessageUnknownOwner = "No user found with this email"
	MessageUnavailable  = "verification temporarily unavailable"
)

// Strategy selects how candidates are probed.
type Strategy string

const (
	// Sequential probes candidates one at a time in store order.
	Sequential Strategy = "sequential"
	// Parallel probes up to the configured parallelism at once. The lowest
	// matching candidate index wins, as it would sequentially.
	Parallel Strategy = "parallel"
)

var tracer = otel.Tracer("legitify/verification")

// Request is a verification of one uploaded document for a claimed owner.
type Request struct {
	OwnerEmail string
	Document   []byte
}

// Details is the provenance of the matched record.
type Details struct {
	Issuer    string
	IssuerOrg string
	Metadata  json.RawMessage
	Status    string
	IssuedAt  string
}

// CandidateError is a ledger failure on one candidate. It is diagnostic only.
type CandidateError struct {
	LedgerID string
	Err      error
}

// Result is the definite answer of a completed scan.
type Result struct {
	Verified bool
	Message  string
	DocID    string
	Details  *Details
	Hash     string
	// Queried counts verifyCredential calls actually issued.
	Queried  int
	Failures []CandidateError
}

type Option func(*Coordinator)

func WithStrategy(s Strategy) Option {
	return func(c *Coordinator) {
		c.strategy = s
	}
}

// WithParallelism bounds in-flight ledger queries for the parallel strategy.
func WithParallelism(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.parallelism = n
		}
	}
}

// WithTimeout bounds the ledger part of a verification.
func WithTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		c.timeout = d
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// Coordinator runs verifications. It holds no per-request state.
type Coordinator struct {
	directory   Directory
	ledger      Ledger
	auditor     AuditPublisher
	channel     string
	contract    string
	strategy    Strategy
	parallelism int
	timeout     time.Duration
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

func New(directory Directory, ledger Ledger, auditor AuditPublisher, channel, contract string, opts ...Option) *Coordinator {
	c := &Coordinator{
		directory:   directory,
		ledger:      ledger,
		auditor:     auditor,
		channel:     channel,
		contract:    contract,
		strategy:    Sequential,
		parallelism: 4,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Verify reports whether req.Document matches an active credential of the
// claimed owner. Unknown owners fail with CodeUnknownOwner. A scan that could
// not reach the ledger at all fails with CodeUnavailable; every other outcome
// is a Result.
func (c *Coordinator) Verify(ctx context.Context, caller requestcontext.Principal, req Request) (*Result, error) {
	start := time.Now()
	if models.Role(caller.Role) != models.RoleEmployer {
		return nil, dErrors.New(dErrors.CodeForbidden, "only employers may verify documents")
	}
	if len(req.Document) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "document is required")
	}
	hash := digest.SHA256Hex(req.Document)

	owner, err := c.directory.FindUserByEmail(ctx, models.NormalizeEmail(req.OwnerEmail))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.metrics.Observe(string(c.strategy), "unknown_owner", 0, time.Since(start).Seconds())
			return nil, dErrors.New(dErrors.CodeUnknownOwner, MessageUnknownOwner)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve owner")
	}

	candidates, err := c.directory.ListAccepted(ctx, owner.ID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list candidate documents")
	}
	if len(candidates) == 0 {
		result := &Result{Message: MessageNoMatch, Hash: hash}
		c.finish(ctx, caller, owner, result, start)
		return result, nil
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	ctx, span := tracer.Start(ctx, "verification.scan")
	defer span.End()
	span.SetAttributes(
		attribute.String("verification.strategy", string(c.strategy)),
		attribute.Int("verification.candidates", len(candidates)),
		attribute.String("ledger.organization", caller.Organization),
	)

	var scan scanResult
	err = c.ledger.WithContract(ctx, c.ref(caller), func(ctx context.Context, contract session.Contract) error {
		if c.strategy == Parallel {
			scan = c.scanParallel(ctx, contract, candidates, hash)
		} else {
			scan = c.scanSequential(ctx, contract, candidates, hash)
		}
		if scan.match >= 0 {
			scan.details = c.provenance(ctx, contract, candidates[scan.match])
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "session")
		c.logger.WarnContext(ctx, "verification could not open a ledger session",
			"request_id", requestcontext.RequestID(ctx),
			"organization", caller.Organization,
			"error", err,
		)
		c.metrics.Observe(string(c.strategy), "unavailable", 0, time.Since(start).Seconds())
		return nil, sessionFailure(err)
	}

	span.SetAttributes(attribute.Int("verification.queried", scan.queried))
	if scan.match < 0 && scan.answered == 0 && len(scan.failures) > 0 {
		span.SetStatus(codes.Error, "unavailable")
		c.logger.WarnContext(ctx, "no candidate could be checked against the ledger",
			"request_id", requestcontext.RequestID(ctx),
			"candidates", len(candidates),
			"error", scan.failures[0].Err,
		)
		c.metrics.Observe(string(c.strategy), "unavailable", scan.queried, time.Since(start).Seconds())
		return nil, &dErrors.Error{Code: dErrors.CodeUnavailable, Message: MessageUnavailable, Err: scan.failures[0].Err}
	}

	result := &Result{
		Message:  MessageNoMatch,
		Hash:     hash,
		Queried:  scan.queried,
		Failures: scan.failures,
	}
	if scan.match >= 0 {
		result.Verified = true
		result.Message = MessageVerified
		result.DocID = candidates[scan.match].LedgerID
		result.Details = scan.details
	}
	c.finish(ctx, caller, owner, result, start)
	return result, nil
}

func (c *Coordinator) ref(p requestcontext.Principal) session.ContractRef {
	return session.ContractRef{
		Label:        p.IdentityLabel,
		Organization: p.Organization,
		Channel:      c.channel,
		Contract:     c.contract,
	}
}

type scanResult struct {
	match int
	// answered counts candidates the ledger gave a definite answer for,
	// NotFound included.
	answered int
	queried  int
	failures []CandidateError
	details  *Details
}

// settle folds one candidate outcome into the scan.
func (r *scanResult) settle(ctx context.Context, logger *slog.Logger, id string, err error) {
	if err == nil {
		r.answered++
		return
	}
	if dErrors.HasCode(err, dErrors.CodeNotFound) {
		r.answered++
		logger.WarnContext(ctx, "candidate document has no ledger record",
			"request_id", requestcontext.RequestID(ctx),
			"ledger_id", id,
		)
		return
	}
	logger.WarnContext(ctx, "candidate verification failed",
		"request_id", requestcontext.RequestID(ctx),
		"ledger_id", id,
		"error", err,
	)
	r.failures = append(r.failures, CandidateError{LedgerID: id, Err: err})
}

func (c *Coordinator) scanSequential(ctx context.Context, contract session.Contract, candidates []models.Candidate, hash string) scanResult {
	res := scanResult{match: -1}
	for i, cand := range candidates {
		if err := ctx.Err(); err != nil {
			res.settle(ctx, c.logger, cand.LedgerID, session.Translate(err))
			break
		}
		ok, err := c.check(ctx, contract, cand.LedgerID, hash)
		res.queried++
		res.settle(ctx, c.logger, cand.LedgerID, err)
		if ok {
			res.match = i
			return res
		}
	}
	return res
}

type probe struct {
	done    bool
	skipped bool
	ok      bool
	err     error
}

// scanParallel fans out over candidates. Once every candidate before the
// lowest match has answered, in-flight and pending work is cancelled.
func (c *Coordinator) scanParallel(ctx context.Context, contract session.Contract, candidates []models.Candidate, hash string) scanResult {
	scanCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu       sync.Mutex
		probes   = make([]probe, len(candidates))
		frontier int
	)
	record := func(i int, p probe) {
		mu.Lock()
		defer mu.Unlock()
		p.done = true
		probes[i] = p
		for frontier < len(probes) && probes[frontier].done && !probes[frontier].ok {
			frontier++
		}
		if frontier < len(probes) && probes[frontier].ok {
			cancel()
		}
	}

	var g errgroup.Group
	g.SetLimit(c.parallelism)
	for i, cand := range candidates {
		if scanCtx.Err() != nil {
			break
		}
		g.Go(func() error {
			if scanCtx.Err() != nil {
				record(i, probe{skipped: true, err: session.Translate(scanCtx.Err())})
				return nil
			}
			ok, err := c.check(scanCtx, contract, cand.LedgerID, hash)
			record(i, probe{ok: ok, err: err})
			return nil
		})
	}
	_ = g.Wait()

	res := scanResult{match: -1}
	for i, p := range probes {
		if !p.skipped && p.done {
			res.queried++
		}
		if res.match >= 0 {
			continue
		}
		if !p.done {
			// Never started because the parent context ended.
			if err := ctx.Err(); err != nil {
				res.settle(ctx, c.logger, candidates[i].LedgerID, session.Translate(err))
			}
			continue
		}
		res.settle(ctx, c.logger, candidates[i].LedgerID, p.err)
		if p.ok {
			res.match = i
		}
	}
	return res
}

// check runs verifyCredential for one candidate.
func (c *Coordinator) check(ctx context.Context, contract session.Contract, id, hash string) (bool, error) {
	req := ledger.VerifyRequest{ID: id, Hash: hash}
	if err := req.Validate(); err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeValidation, err.Error())
	}
	payload, err := contract.Evaluate(ctx, ledger.TxVerifyCredential, req.Args()...)
	if err != nil {
		return false, err
	}
	ok, err := ledger.ParseBool(payload)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "malformed verification payload")
	}
	return ok, nil
}

// provenance reads the matched record for display. A failed read degrades to
// the off-ledger view rather than failing a positive verification.
func (c *Coordinator) provenance(ctx context.Context, contract session.Contract, cand models.Candidate) *Details {
	details := &Details{
		IssuerOrg: cand.IssuerOrg,
		Metadata:  cand.Metadata,
		Status:    string(ledger.StatusActive),
	}
	payload, err := contract.Evaluate(ctx, ledger.TxReadCredential, cand.LedgerID)
	if err == nil {
		var record ledger.Record
		if err = json.Unmarshal(payload, &record); err == nil {
			details.Issuer = record.Issuer
			details.Status = string(record.Status)
			details.IssuedAt = record.IssuedAt
			if len(record.Metadata) > 0 {
				details.Metadata = record.Metadata
			}
			return details
		}
	}
	c.logger.WarnContext(ctx, "failed to read provenance of matched credential",
		"request_id", requestcontext.RequestID(ctx),
		"ledger_id", cand.LedgerID,
		"error", err,
	)
	return details
}

func (c *Coordinator) finish(ctx context.Context, caller requestcontext.Principal, owner models.User, result *Result, start time.Time) {
	outcome := "not_verified"
	if result.Verified {
		outcome = "verified"
	}
	c.metrics.Observe(string(c.strategy), outcome, result.Queried, time.Since(start).Seconds())
	c.logger.InfoContext(ctx, "verification completed",
		"request_id", requestcontext.RequestID(ctx),
		"outcome", outcome,
		"doc_id", result.DocID,
		"queried", result.Queried,
		"failures", len(result.Failures),
	)

	if c.auditor == nil {
		return
	}
	event := audit.Event{
		Type:         audit.EventCredentialVerified,
		Timestamp:    requestcontext.Now(ctx).UTC(),
		CredentialID: result.DocID,
		Organization: caller.Organization,
		ActorID:      caller.UserID,
		OwnerID:      owner.ID,
		Outcome:      outcome,
		RequestID:    requestcontext.RequestID(ctx),
	}
	if err := c.auditor.Emit(ctx, event); err != nil {
		c.logger.WarnContext(ctx, "failed to emit verification event",
			"request_id", event.RequestID,
			"error", err,
		)
	}
}

// sessionFailure keeps configuration and identity errors verbatim and reports
// everything else as temporary unavailability.
func sessionFailure(err error) error {
	switch dErrors.CodeOf(err) {
	case dErrors.CodeUnknownOrganization,
		dErrors.CodeUnknownChannel,
		dErrors.CodeUnknownContract,
		dErrors.CodeAuthenticationRejected,
		dErrors.CodeForbidden:
		return err
	}
	return &dErrors.Error{Code: dErrors.CodeUnavailable, Message: MessageUnavailable, Err: err}
}
