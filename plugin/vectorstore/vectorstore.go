package vectorstore

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	chromem "github.com/philippgille/chromem-go"
)

// SearchResult is a single transcript similarity hit.
type SearchResult struct {
	ConversationUID string
	Transcript      string
	Score           float32
}

// Store wraps chromem-go with per-user collections and disk persistence.
// Transcripts are indexed after they are saved so reps can find earlier
// sessions that went the same way.
type Store struct {
	mu      sync.RWMutex
	db      *chromem.DB
	dataDir string
	embedFn chromem.EmbeddingFunc
}

// OpenAIEmbedding returns an embedding function backed by the provider's
// embeddings endpoint.
func OpenAIEmbedding(baseURL, apiKey string) chromem.EmbeddingFunc {
	return chromem.NewEmbeddingFuncOpenAICompat(baseURL, apiKey, "text-embedding-3-small", nil)
}

// New creates (or opens) the persistent vector store at dataDir/vectorstore/.
func New(dataDir string, embedFunc chromem.EmbeddingFunc) (*Store, error) {
	dir := filepath.Join(dataDir, "vectorstore")
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create vectorstore dir: %w", err)
	}
	db, err := chromem.NewPersistentDB(dir, false)
	if err != nil {
		return nil, fmt.Errorf("open vectorstore: %w", err)
	}
	return &Store{db: db, dataDir: dir, embedFn: embedFunc}, nil
}

func collectionName(userID int32) string {
	return fmt.Sprintf("user_%d_transcripts", userID)
}

func (s *Store) getOrCreateCollection(userID int32) *chromem.Collection {
	name := collectionName(userID)
	col := s.db.GetCollection(name, s.embedFn)
	if col == nil {
		var err error
		col, err = s.db.CreateCollection(name, nil, s.embedFn)
		if err != nil {
			slog.Error("failed to create vector collection", "user", userID, "err", err)
			return nil
		}
	}
	return col
}

// UpsertTranscript indexes (or re-indexes) a conversation transcript.
func (s *Store) UpsertTranscript(ctx context.Context, userID int32, conversationUID, transcript string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	col := s.getOrCreateCollection(userID)
	if col == nil {
		return fmt.Errorf("vectorstore: nil collection for user %d", userID)
	}

	doc := chromem.Document{
		ID:      conversationUID,
		Content: transcript,
	}
	return col.AddDocument(ctx, doc)
}

// SearchSimilar returns the top-k transcripts most semantically similar to
// the query.
func (s *Store) SearchSimilar(ctx context.Context, userID int32, query string, k int) ([]SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	col := s.getOrCreateCollection(userID)
	if col == nil {
		return nil, nil
	}

	count := col.Count()
	if count == 0 {
		return nil, nil
	}
	if k > count {
		k = count
	}

	var results []chromem.Result
	var err error

	// chromem-go sometimes throws "nResults must be <= number of documents"
	// despite Count checks. Step down k if it fails.
	for attemptK := k; attemptK > 0; attemptK-- {
		results, err = col.Query(ctx, query, attemptK, nil, nil)
		if err == nil {
			break
		}
	}
	if err != nil {
		return nil, err
	}

	out := make([]SearchResult, 0, len(results))
	for _, r := range results {
		out = append(out, SearchResult{
			ConversationUID: r.ID,
			Transcript:      r.Content,
			Score:           r.Similarity,
		})
	}
	return out, nil
}
