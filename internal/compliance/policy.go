// Package compliance checks cart items against the purchase policy.
//
// Policy text is chunked and indexed into a chromem collection; checks
// retrieve the relevant chunks and ask the verdict oracle for a ruling.
// When the oracle is unavailable a deterministic role-limit rule decides
// instead.
package compliance

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/buyerd/internal/logging"
)

// ErrPolicyUnavailable indicates the policy index could not be built.
var ErrPolicyUnavailable = errors.New("policy index unavailable")

const policyCollection = "purchase-policy"

// PolicyIndex retrieves policy passages relevant to a purchase.
type PolicyIndex struct {
	coll   *chromem.Collection
	logger *logging.Logger
}

// NewPolicyIndex reads the policy document, chunks it and loads it into
// a chromem collection. With indexDir set the collection persists on
// disk and reloads instead of re-embedding.
func NewPolicyIndex(ctx context.Context, policyPath, indexDir string, chunkSize int, embed chromem.EmbeddingFunc, logger *logging.Logger) (*PolicyIndex, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.Named("policy")

	text, err := os.ReadFile(policyPath)
	if err != nil {
		return nil, fmt.Errorf("%w: read policy: %v", ErrPolicyUnavailable, err)
	}

	var db *chromem.DB
	if indexDir != "" {
		db, err = chromem.NewPersistentDB(indexDir, false)
		if err != nil {
			return nil, fmt.Errorf("%w: open index: %v", ErrPolicyUnavailable, err)
		}
	} else {
		db = chromem.NewDB()
	}

	coll, err := db.GetOrCreateCollection(policyCollection, nil, embed)
	if err != nil {
		return nil, fmt.Errorf("%w: open collection: %v", ErrPolicyUnavailable, err)
	}

	if coll.Count() == 0 {
		chunks := chunkText(string(text), chunkSize)
		docs := make([]chromem.Document, len(chunks))
		for i, chunk := range chunks {
			docs[i] = chromem.Document{ID: fmt.Sprintf("chunk-%03d", i), Content: chunk}
		}
		if err := coll.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
			return nil, fmt.Errorf("%w: index policy: %v", ErrPolicyUnavailable, err)
		}
		logger.Info(ctx, "indexed purchase policy",
			zap.String("path", policyPath), zap.Int("chunks", len(chunks)))
	}

	return &PolicyIndex{coll: coll, logger: logger}, nil
}

// Retrieve returns up to topK policy passages ranked by relevance.
func (p *PolicyIndex) Retrieve(ctx context.Context, query string, topK int) ([]string, error) {
	if n := p.coll.Count(); topK > n {
		topK = n
	}
	if topK <= 0 {
		return nil, nil
	}
	results, err := p.coll.Query(ctx, query, topK, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query policy index: %w", err)
	}
	passages := make([]string, len(results))
	for i, r := range results {
		passages[i] = r.Content
	}
	return passages, nil
}

// chunkText splits text into chunks of at most size bytes, preferring
// to break on newlines so clauses stay intact.
func chunkText(text string, size int) []string {
	if size <= 0 {
		size = 500
	}
	var chunks []string
	for len(text) > 0 {
		if len(text) <= size {
			if trimmed := strings.TrimSpace(text); trimmed != "" {
				chunks = append(chunks, trimmed)
			}
			break
		}
		cut := size
		if nl := strings.LastIndexByte(text[:size], '\n'); nl > 0 {
			cut = nl
		}
		if trimmed := strings.TrimSpace(text[:cut]); trimmed != "" {
			chunks = append(chunks, trimmed)
		}
		text = text[cut:]
	}
	return chunks
}
