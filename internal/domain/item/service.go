package item

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/rpggio/dsheet/internal/domain/activity"
	"github.com/rpggio/dsheet/internal/domain/project"
	"github.com/rpggio/dsheet/internal/repository"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const pageSize = 100

// Service is the sequenced registry: item CRUD keyed by a per-project
// unique number, with shifts, compaction, attachments and table import.
type Service struct {
	items       Repository
	projects    ProjectRepository
	attachments AttachmentStore
	activities  ActivityRepository
	locks       *projectLocks
	logger      *slog.Logger

	retryTries   uint
	retryInitial time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithRetry sets how often park, settle and constraint restore are attempted.
func WithRetry(maxTries uint, initial time.Duration) Option {
	return func(s *Service) {
		if maxTries > 0 {
			s.retryTries = maxTries
		}
		if initial > 0 {
			s.retryInitial = initial
		}
	}
}

// NewService creates a new registry service.
func NewService(
	items Repository,
	projects ProjectRepository,
	attachments AttachmentStore,
	activities ActivityRepository,
	logger *slog.Logger,
	opts ...Option,
) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Service{
		items:        items,
		projects:     projects,
		attachments:  attachments,
		activities:   activities,
		locks:        newProjectLocks(),
		logger:       logger,
		retryTries:   5,
		retryInitial: 50 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get fetches one item by identity.
func (s *Service) Get(ctx context.Context, projectKey, id string) (*Item, error) {
	if err := s.ensureProject(ctx, projectKey); err != nil {
		return nil, err
	}
	it, err := s.items.Get(ctx, projectKey, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, storageError("getting item", err)
	}
	return it, nil
}

// List returns every item of a project in ascending number order. Duplicate
// or parked numbers are reported as ErrRegistryCorruption rather than hidden.
func (s *Service) List(ctx context.Context, projectKey string) ([]Item, error) {
	var out []Item
	for it, err := range s.Items(ctx, projectKey) {
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	if out == nil {
		out = []Item{}
	}
	return out, nil
}

// Items streams a project's items page by page in ascending number order.
func (s *Service) Items(ctx context.Context, projectKey string) iter.Seq2[Item, error] {
	return func(yield func(Item, error) bool) {
		if err := s.ensureProject(ctx, projectKey); err != nil {
			yield(Item{}, err)
			return
		}
		var (
			opts = ListOptions{Limit: pageSize}
			prev *Item
		)
		for {
			page, err := s.items.List(ctx, projectKey, opts)
			if err != nil {
				yield(Item{}, storageError("listing items", err))
				return
			}
			for i := range page {
				it := page[i]
				if err := s.checkOrder(projectKey, prev, &it); err != nil {
					yield(Item{}, err)
					return
				}
				if !yield(it, nil) {
					return
				}
				prev = &page[i]
			}
			if len(page) < opts.Limit {
				return
			}
			last := page[len(page)-1]
			opts.AfterNumber = last.Number
			opts.AfterID = last.ID
		}
	}
}

func (s *Service) checkOrder(projectKey string, prev, cur *Item) error {
	switch {
	case cur.Number >= ParkOffset:
		corruptionDetected.Inc()
		s.logger.Error("unsettled shift detected",
			"project", projectKey, "item_id", cur.ID, "number", cur.Number)
		return fmt.Errorf("%w: item %s parked at %d", ErrRegistryCorruption, cur.ID, cur.Number)
	case prev != nil && prev.Number == cur.Number:
		corruptionDetected.Inc()
		s.logger.Error("duplicate item number detected",
			"project", projectKey, "number", cur.Number, "first", prev.ID, "second", cur.ID)
		return fmt.Errorf("%w: items %s and %s share number %d",
			ErrRegistryCorruption, prev.ID, cur.ID, cur.Number)
	}
	return nil
}

// Upsert creates an item (ID empty) or updates one. When the requested
// number is held by another item, that item and every one above it move up
// by one first. Uploaded images are stored and normalized before any
// numeric write; they are appended to the item's existing images.
func (s *Service) Upsert(ctx context.Context, projectKey string, req UpsertRequest) (_ *Item, err error) {
	ctx, span := tracer.Start(ctx, "item.Upsert", trace.WithAttributes(
		attribute.String("project", projectKey),
		attribute.Int("number", req.Number),
	))
	defer func() {
		observe("upsert", err)
		endSpan(span, err)
	}()

	req.Fields = NormalizeNewlines(req.Fields)
	if err := ValidateFields(req.Fields); err != nil {
		return nil, err
	}
	if err := ValidateNumber(req.Number); err != nil {
		return nil, err
	}
	if err := s.ensureProject(ctx, projectKey); err != nil {
		return nil, err
	}

	unlock := s.locks.lock(projectKey)
	defer unlock()
	// A half-finished shift is worse than a late response.
	ctx = context.WithoutCancel(ctx)

	var current *Item
	if req.ID != "" {
		current, err = s.items.Get(ctx, projectKey, req.ID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, ErrNotFound
			}
			return nil, storageError("loading item", err)
		}
	}

	refs, err := s.storeUploads(ctx, projectKey, req.Images)
	if err != nil {
		return nil, err
	}

	saved, err := s.write(ctx, projectKey, current, req, refs)
	if err != nil {
		s.releaseAll(ctx, refs)
		return nil, err
	}
	return saved, nil
}

func (s *Service) write(ctx context.Context, projectKey string, current *Item, req UpsertRequest, refs []string) (*Item, error) {
	if current == nil || current.Number != req.Number {
		var selfID string
		if current != nil {
			selfID = current.ID
		}
		if err := s.makeRoom(ctx, projectKey, req.Number, selfID); err != nil {
			return nil, err
		}
	}

	now := time.Now()
	if current == nil {
		it := &Item{
			ID:         uuid.NewString(),
			ProjectKey: projectKey,
			Number:     req.Number,
			Title:      req.Fields.Title,
			Content:    req.Fields.Content,
			Detail:     req.Fields.Detail,
			Images:     refs,
			CreatedAt:  now,
			ModifiedAt: now,
		}
		if it.Images == nil {
			it.Images = []string{}
		}
		if err := s.items.Create(ctx, it); err != nil {
			return nil, s.writeError("creating item", err)
		}
		s.logActivity(ctx, projectKey, &it.ID, activity.TypeItemCreated,
			fmt.Sprintf("created item %d", it.Number))
		return it, nil
	}

	it := *current
	it.Number = req.Number
	it.Title = req.Fields.Title
	it.Content = req.Fields.Content
	it.Detail = req.Fields.Detail
	it.Images = append(append([]string{}, current.Images...), refs...)
	it.ModifiedAt = now
	if err := s.items.Update(ctx, &it); err != nil {
		return nil, s.writeError("updating item", err)
	}
	s.logActivity(ctx, projectKey, &it.ID, activity.TypeItemUpdated,
		fmt.Sprintf("updated item %d", it.Number))
	return &it, nil
}

// makeRoom shifts when number is held by an item other than selfID.
func (s *Service) makeRoom(ctx context.Context, projectKey string, number int, selfID string) error {
	occupant, err := s.items.FindByNumber(ctx, projectKey, number)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return storageError("checking number", err)
	}
	if occupant.ID == selfID {
		return nil
	}
	return s.shift(ctx, projectKey, number)
}

func (s *Service) writeError(op string, err error) error {
	switch {
	case errors.Is(err, repository.ErrConflict):
		return fmt.Errorf("%s: %w: %w", op, ErrRegistryCorruption, err)
	case errors.Is(err, repository.ErrNotFound):
		return ErrNotFound
	}
	return storageError(op, err)
}

// Delete removes an item and releases its images. A file that fails to
// release is logged and left for Sweep.
func (s *Service) Delete(ctx context.Context, projectKey, id string) (err error) {
	defer func() { observe("delete", err) }()

	if err := s.ensureProject(ctx, projectKey); err != nil {
		return err
	}
	unlock := s.locks.lock(projectKey)
	defer unlock()

	it, err := s.items.Get(ctx, projectKey, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return storageError("loading item", err)
	}
	if err := s.items.Delete(ctx, projectKey, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return storageError("deleting item", err)
	}
	s.releaseAll(ctx, it.Images)

	s.logActivity(ctx, projectKey, &it.ID, activity.TypeItemDeleted,
		fmt.Sprintf("deleted item %d", it.Number))
	return nil
}

// DeleteAll removes every item of a project. Image files stay until Sweep.
func (s *Service) DeleteAll(ctx context.Context, projectKey string) (n int, err error) {
	defer func() { observe("delete_all", err) }()

	if err := s.ensureProject(ctx, projectKey); err != nil {
		return 0, err
	}
	unlock := s.locks.lock(projectKey)
	defer unlock()

	n, err = s.items.DeleteAll(ctx, projectKey)
	if err != nil {
		return 0, storageError("deleting items", err)
	}
	s.logActivity(ctx, projectKey, nil, activity.TypeItemsWiped,
		fmt.Sprintf("deleted %d items", n))
	return n, nil
}

// AttachImages stores, normalizes and appends images to an existing item.
func (s *Service) AttachImages(ctx context.Context, projectKey, id string, uploads []Upload) (_ *Item, err error) {
	defer func() { observe("attach", err) }()

	if len(uploads) == 0 {
		return nil, fmt.Errorf("%w: no images", ErrValidationFailed)
	}
	if err := s.ensureProject(ctx, projectKey); err != nil {
		return nil, err
	}
	unlock := s.locks.lock(projectKey)
	defer unlock()

	it, err := s.items.Get(ctx, projectKey, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, storageError("loading item", err)
	}
	refs, err := s.storeUploads(ctx, projectKey, uploads)
	if err != nil {
		return nil, err
	}
	it.Images = append(it.Images, refs...)
	it.ModifiedAt = time.Now()
	if err := s.items.Update(ctx, it); err != nil {
		s.releaseAll(ctx, refs)
		return nil, s.writeError("attaching images", err)
	}
	s.logActivity(ctx, projectKey, &it.ID, activity.TypeImageAttached,
		fmt.Sprintf("attached %d images to item %d", len(refs), it.Number))
	return it, nil
}

// RemoveImage detaches the image at index and then releases its file.
func (s *Service) RemoveImage(ctx context.Context, projectKey, id string, index int) (_ *Item, err error) {
	defer func() { observe("remove_image", err) }()

	if err := s.ensureProject(ctx, projectKey); err != nil {
		return nil, err
	}
	unlock := s.locks.lock(projectKey)
	defer unlock()

	it, err := s.items.Get(ctx, projectKey, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, storageError("loading item", err)
	}
	if index < 0 || index >= len(it.Images) {
		return nil, ErrNotFound
	}
	ref := it.Images[index]
	it.Images = append(append([]string{}, it.Images[:index]...), it.Images[index+1:]...)
	it.ModifiedAt = time.Now()
	if err := s.items.Update(ctx, it); err != nil {
		return nil, s.writeError("detaching image", err)
	}
	if err := s.attachments.Release(ctx, ref); err != nil {
		// The reference is already gone; Sweep reclaims the file.
		s.logger.Warn("image release failed", "project", projectKey, "ref", ref, "error", err)
	}
	s.logActivity(ctx, projectKey, &it.ID, activity.TypeImageRemoved,
		fmt.Sprintf("removed image %d from item %d", index, it.Number))
	return it, nil
}

// Sweep releases stored files in the project scope that no item references.
func (s *Service) Sweep(ctx context.Context, projectKey string) (_ *SweepResult, err error) {
	defer func() { observe("sweep", err) }()

	if err := s.ensureProject(ctx, projectKey); err != nil {
		return nil, err
	}
	unlock := s.locks.lock(projectKey)
	defer unlock()

	referenced := make(map[string]struct{})
	opts := ListOptions{Limit: pageSize}
	for {
		page, err := s.items.List(ctx, projectKey, opts)
		if err != nil {
			return nil, storageError("listing items", err)
		}
		for _, it := range page {
			for _, ref := range it.Images {
				referenced[ref] = struct{}{}
			}
		}
		if len(page) < opts.Limit {
			break
		}
		opts.AfterNumber = page[len(page)-1].Number
		opts.AfterID = page[len(page)-1].ID
	}

	stored, err := s.attachments.List(ctx, projectKey)
	if err != nil {
		return nil, storageError("listing attachments", err)
	}
	res := &SweepResult{Released: []string{}}
	for _, ref := range stored {
		if _, ok := referenced[ref]; ok {
			res.Kept++
			continue
		}
		if err := s.attachments.Release(ctx, ref); err != nil {
			return nil, storageError("releasing attachment", err)
		}
		res.Released = append(res.Released, ref)
	}
	if len(res.Released) > 0 {
		s.logActivity(ctx, projectKey, nil, activity.TypeAttachmentsSwept,
			fmt.Sprintf("released %d unreferenced files", len(res.Released)))
	}
	return res, nil
}

// DropProject deletes every item, every stored file and the project itself.
func (s *Service) DropProject(ctx context.Context, projectKey string) (err error) {
	defer func() { observe("drop_project", err) }()

	if err := s.ensureProject(ctx, projectKey); err != nil {
		return err
	}
	unlock := s.locks.lock(projectKey)
	defer unlock()

	if _, err := s.items.DeleteAll(ctx, projectKey); err != nil {
		return storageError("deleting items", err)
	}
	stored, err := s.attachments.List(ctx, projectKey)
	if err != nil {
		return storageError("listing attachments", err)
	}
	s.releaseAll(ctx, stored)
	if err := s.projects.Delete(ctx, projectKey); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return storageError("deleting project", err)
	}
	s.logger.Info("project dropped", "project", projectKey, "files", len(stored))
	s.logActivity(ctx, projectKey, nil, activity.TypeProjectDropped,
		fmt.Sprintf("dropped project and %d files", len(stored)))
	return nil
}

func (s *Service) ensureProject(ctx context.Context, projectKey string) error {
	if !project.ValidKey(projectKey) {
		return fmt.Errorf("%w: project %q", ErrNotFound, projectKey)
	}
	if _, err := s.projects.Get(ctx, projectKey); err != nil {
		if errors.Is(err, repository.ErrNotFound) || errors.Is(err, project.ErrProjectNotFound) {
			return fmt.Errorf("%w: project %q", ErrNotFound, projectKey)
		}
		return storageError("loading project", err)
	}
	return nil
}

func (s *Service) storeUploads(ctx context.Context, projectKey string, uploads []Upload) ([]string, error) {
	refs := make([]string, 0, len(uploads))
	for _, up := range uploads {
		ref, err := s.attachments.Store(ctx, projectKey, up.Data, up.Name)
		if err != nil {
			s.releaseAll(ctx, refs)
			return nil, attachmentError("storing image", err)
		}
		refs = append(refs, ref)
		resized, err := s.attachments.Normalize(ctx, ref)
		if err != nil {
			s.releaseAll(ctx, refs)
			return nil, attachmentError("normalizing image", err)
		}
		if resized {
			s.logger.Debug("image downscaled", "project", projectKey, "ref", ref)
		}
	}
	return refs, nil
}

func attachmentError(op string, err error) error {
	if errors.Is(err, ErrValidationFailed) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return storageError(op, err)
}

func (s *Service) releaseAll(ctx context.Context, refs []string) {
	for _, ref := range refs {
		if err := s.attachments.Release(ctx, ref); err != nil {
			s.logger.Warn("image release failed", "ref", ref, "error", err)
		}
	}
}

func (s *Service) logActivity(ctx context.Context, projectKey string, itemID *string, typ activity.Type, summary string) {
	if s.activities == nil {
		return
	}
	if err := s.activities.Log(ctx, &activity.Entry{
		ProjectKey: projectKey,
		ItemID:     itemID,
		Type:       typ,
		Summary:    summary,
		CreatedAt:  time.Now(),
	}); err != nil {
		s.logger.Warn("activity log failed", "project", projectKey, "type", typ, "error", err)
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
