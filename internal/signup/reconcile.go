package signup

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rkanadam/sssbcsj-api/internal/store"
)

// SignedUpOnLayout formats the timestamp stamped on signee rows.
const SignedUpOnLayout = "Mon, Jan/02/2006 03:04:05.000 PM MST"

// Outcome is what happened to one requested row.
type Outcome string

const (
	OutcomeApplied      Outcome = "applied"
	OutcomeInsufficient Outcome = "insufficient"
	OutcomeGone         Outcome = "gone"
	OutcomeMoved        Outcome = "moved"
	OutcomeInvalidCount Outcome = "invalid_count"
	OutcomeRejected     Outcome = "rejected"
)

// ItemRequest asks for Count units of the open item at sheet row Row. Item,
// when set, must match the row's item or the request is treated as moved.
// Selection, Scale and Notes are used by claim-slot domains.
type ItemRequest struct {
	Row       int    `json:"row"`
	Count     int    `json:"itemCount"`
	Item      string `json:"item,omitempty"`
	Selection string `json:"selection,omitempty"`
	Scale     string `json:"scale,omitempty"`
	Notes     string `json:"notes,omitempty"`
}

// Batch is a set of item requests against one sheet.
type Batch struct {
	DocumentID string        `json:"spreadsheetId"`
	SheetTitle string        `json:"sheetTitle"`
	Items      []ItemRequest `json:"items"`
}

// RowResult reports the outcome for one requested row.
type RowResult struct {
	Row       int     `json:"row"`
	Outcome   Outcome `json:"outcome"`
	Remaining int     `json:"remaining"`
	Signee    *Row    `json:"signee,omitempty"`
}

// BatchResult lists per-row results in processing order and the signee
// rows actually written.
type BatchResult struct {
	Results []RowResult `json:"results"`
	Applied []Row       `json:"applied"`
}

// Reconciler applies signup requests to sheets.
//
// A batch is processed in descending row order, so deleting a fully claimed
// row never shifts a row that is still to be processed. Batches against the
// same sheet are serialized in-process; stores implementing store.Locker are
// also locked for the duration of the batch. Stores without conditional
// writes can still lose an update to a concurrent writer in another process
// between the fresh read and the write.
type Reconciler struct {
	store    store.Store
	location *time.Location
	now      func() time.Time
	locks    *keyedMutex
}

func NewReconciler(s store.Store, location *time.Location) *Reconciler {
	if location == nil {
		location = time.Local
	}
	return &Reconciler{
		store:    s,
		location: location,
		now:      time.Now,
		locks:    newKeyedMutex(),
	}
}

// Reconcile applies a single request.
func (r *Reconciler) Reconcile(ctx context.Context, domain Domain, documentID, sheetTitle string, item ItemRequest, caller Caller) (RowResult, error) {
	result, err := r.SubmitBatch(ctx, domain, Batch{DocumentID: documentID, SheetTitle: sheetTitle, Items: []ItemRequest{item}}, caller)
	if err != nil {
		return RowResult{}, err
	}
	return result.Results[0], nil
}

// SubmitBatch applies every request of the batch. Requests that cannot be
// satisfied leave the sheet untouched and are reported with their outcome.
// Store failures stop the batch; rows already written stay written.
func (r *Reconciler) SubmitBatch(ctx context.Context, domain Domain, batch Batch, caller Caller) (BatchResult, error) {
	unlock := r.locks.Lock(batch.DocumentID + "\x00" + batch.SheetTitle)
	defer unlock()
	if locker, ok := r.store.(store.Locker); ok {
		release, err := locker.Lock(ctx, batch.DocumentID)
		if err != nil {
			return BatchResult{}, fmt.Errorf("lock %s: %w", batch.DocumentID, err)
		}
		defer release()
	}

	rows, err := r.store.ReadRange(ctx, batch.DocumentID, store.SheetRange(batch.SheetTitle))
	if err != nil {
		return BatchResult{}, fmt.Errorf("read sheet %q: %w", batch.SheetTitle, err)
	}
	sheet, err := Parse(domain, rows)
	if err != nil {
		return BatchResult{}, err
	}

	job := &batchJob{
		reconciler: r,
		domain:     domain,
		batch:      batch,
		caller:     caller,
		firstRow:   sheet.FirstRow,
		handle:     -1,
	}
	result := BatchResult{Results: []RowResult{}, Applied: []Row{}}
	for _, item := range mergeRequests(domain, batch.Items) {
		res, err := job.apply(ctx, item)
		if err != nil {
			return result, err
		}
		result.Results = append(result.Results, res)
		if res.Outcome == OutcomeApplied && res.Signee != nil {
			result.Applied = append(result.Applied, *res.Signee)
		}
	}
	return result, nil
}

type batchJob struct {
	reconciler *Reconciler
	domain     Domain
	batch      Batch
	caller     Caller
	firstRow   int
	handle     int64
}

func (j *batchJob) apply(ctx context.Context, item ItemRequest) (RowResult, error) {
	result := RowResult{Row: item.Row}
	if item.Row < j.firstRow || (j.domain.Mode == ModeCapacity && item.Count < 1) {
		result.Outcome = OutcomeRejected
		return result, nil
	}

	r := j.reconciler
	rowRange := store.RowRange(j.batch.SheetTitle, item.Row)
	cells, err := r.store.ReadRange(ctx, j.batch.DocumentID, rowRange)
	if err != nil {
		return result, fmt.Errorf("read row %d: %w", item.Row, err)
	}
	if len(cells) == 0 || isBlank(cells[0]) {
		result.Outcome = OutcomeGone
		return result, nil
	}
	row := j.domain.Layout.Decode(item.Row, cells[0])
	if want := strings.TrimSpace(item.Item); want != "" && !strings.EqualFold(want, row.Item) {
		result.Outcome = OutcomeMoved
		return result, nil
	}
	if row.IsSignee() {
		if j.domain.Mode == ModeClaimSlot {
			result.Outcome = OutcomeInsufficient
		} else {
			result.Outcome = OutcomeMoved
		}
		return result, nil
	}
	if !row.Count.Valid {
		result.Outcome = OutcomeInvalidCount
		return result, nil
	}

	signee := row
	signee.Index = 0
	signee.SignedUpOn = r.now().In(r.location).Format(SignedUpOnLayout)
	signee.Name = j.caller.Name
	signee.Phone = j.caller.Phone
	signee.Email = j.caller.Email

	if j.domain.Mode == ModeClaimSlot {
		signee.Index = item.Row
		signee.Selection = strings.TrimSpace(item.Selection)
		signee.Scale = strings.TrimSpace(item.Scale)
		signee.Notes = strings.TrimSpace(item.Notes)
		if err := r.store.UpdateRange(ctx, j.batch.DocumentID, rowRange, j.domain.Layout.Encode(signee)); err != nil {
			return result, fmt.Errorf("claim row %d: %w", item.Row, err)
		}
		result.Outcome = OutcomeApplied
		result.Signee = &signee
		return result, nil
	}

	current := row.Count.Value
	if item.Count > current {
		result.Outcome = OutcomeInsufficient
		result.Remaining = current
		return result, nil
	}
	signee.Count = CountOf(item.Count)
	if err := r.store.AppendRow(ctx, j.batch.DocumentID, j.batch.SheetTitle, j.domain.Layout.Encode(signee)); err != nil {
		return result, fmt.Errorf("append signee for row %d: %w", item.Row, err)
	}

	remaining := current - item.Count
	if remaining <= 0 {
		handle, err := j.sheetHandle(ctx)
		if err != nil {
			return result, err
		}
		if err := r.store.DeleteRows(ctx, j.batch.DocumentID, handle, item.Row-1, item.Row); err != nil {
			return result, fmt.Errorf("delete row %d: %w", item.Row, err)
		}
	} else {
		row.Count = CountOf(remaining)
		if err := r.store.UpdateRange(ctx, j.batch.DocumentID, rowRange, j.domain.Layout.Encode(row)); err != nil {
			return result, fmt.Errorf("update row %d: %w", item.Row, err)
		}
	}
	result.Outcome = OutcomeApplied
	result.Remaining = max(remaining, 0)
	result.Signee = &signee
	return result, nil
}

func (j *batchJob) sheetHandle(ctx context.Context) (int64, error) {
	if j.handle >= 0 {
		return j.handle, nil
	}
	meta, err := j.reconciler.store.GetSpreadsheet(ctx, j.batch.DocumentID)
	if err != nil {
		return 0, fmt.Errorf("sheet metadata: %w", err)
	}
	sheet, ok := meta.SheetByTitle(j.batch.SheetTitle)
	if !ok {
		return 0, fmt.Errorf("sheet %q: %w", j.batch.SheetTitle, store.ErrNotFound)
	}
	j.handle = sheet.Handle
	return j.handle, nil
}

// mergeRequests folds duplicate row references together and orders the
// result by descending row.
func mergeRequests(domain Domain, items []ItemRequest) []ItemRequest {
	byRow := map[int]int{}
	merged := make([]ItemRequest, 0, len(items))
	for _, item := range items {
		if at, ok := byRow[item.Row]; ok {
			if domain.Mode == ModeCapacity {
				merged[at].Count += item.Count
			}
			continue
		}
		byRow[item.Row] = len(merged)
		merged = append(merged, item)
	}
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Row > merged[j].Row })
	return merged
}

type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: map[string]*keyedLock{}}
}

func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	lock, ok := k.locks[key]
	if !ok {
		lock = &keyedLock{}
		k.locks[key] = lock
	}
	lock.refs++
	k.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		k.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
