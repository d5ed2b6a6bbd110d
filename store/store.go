package store

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// ErrNotFound is returned when a referenced record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrQuotaExceeded is returned when an organization's monthly usage limit
// would be exceeded by an increment.
var ErrQuotaExceeded = errors.New("organization quota exceeded")

// Driver is the narrow persistence interface the core depends on. A driver
// bound to a transaction is passed to RunInTransaction callbacks; all writes
// issued through it commit or roll back as one unit.
type Driver interface {
	CreateConversation(ctx context.Context, create *Conversation) (*Conversation, error)
	ListConversations(ctx context.Context, find *FindConversation) ([]*Conversation, error)
	UpdateConversation(ctx context.Context, update *UpdateConversation) (*Conversation, error)
	DeleteConversation(ctx context.Context, uid string) error
	SummarizeConversations(ctx context.Context, find *FindConversation) (*AnalyticsSummary, error)

	CreateConversationLog(ctx context.Context, create *ConversationLog) (*ConversationLog, error)
	ListConversationLogs(ctx context.Context, find *FindConversationLog) ([]*ConversationLog, error)

	GetQuota(ctx context.Context, organizationID string) (*Quota, error)
	UpsertQuota(ctx context.Context, upsert *Quota) (*Quota, error)

	CreatePromptTemplate(ctx context.Context, create *PromptTemplate) (*PromptTemplate, error)
	ListPromptTemplates(ctx context.Context, find *FindPromptTemplate) ([]*PromptTemplate, error)
	UpdatePromptTemplate(ctx context.Context, update *UpdatePromptTemplate) (*PromptTemplate, error)
	DeletePromptTemplate(ctx context.Context, uid string) error

	RunInTransaction(ctx context.Context, fn func(Driver) error) error
	Close() error
}

// Options carries quota policy configuration consumed by the ledger.
type Options struct {
	// QuotaWindow is the rolling reset window. Defaults to 30 days.
	QuotaWindow time.Duration
	// DefaultQuotaLimit seeds the monthly limit for organizations without a
	// quota row yet. Defaults to 50.
	DefaultQuotaLimit int32
}

// Store provides database access to the rest of the application.
type Store struct {
	driver Driver
	opts   Options

	quotaMu keyedMutex
}

// New creates a Store backed by the given driver.
func New(driver Driver, opts Options) *Store {
	if opts.QuotaWindow <= 0 {
		opts.QuotaWindow = 30 * 24 * time.Hour
	}
	if opts.DefaultQuotaLimit <= 0 {
		opts.DefaultQuotaLimit = 50
	}
	return &Store{driver: driver, opts: opts}
}

// RunInTransaction executes fn with a transaction-bound driver.
func (s *Store) RunInTransaction(ctx context.Context, fn func(Driver) error) error {
	return s.driver.RunInTransaction(ctx, fn)
}

// Close releases the underlying driver.
func (s *Store) Close() error {
	return s.driver.Close()
}

// keyedMutex serializes callers per string key. Entries are retained for the
// process lifetime; the key space (organization ids, conversation uids) is
// small enough that this is not a concern.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
