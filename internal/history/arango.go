package history

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/arangodb/go-driver/v2/arangodb"
	"github.com/arangodb/go-driver/v2/connection"

	"keywordintel/internal/model"
)

// ArangoConfig connects to the graph database backing the keyword/cluster
// synonym graph.
type ArangoConfig struct {
	URL      string
	Username string
	Password string
	Database string
}

func (c ArangoConfig) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("arangodb URL is required")
	}
	if c.Username == "" {
		return fmt.Errorf("arangodb username is required")
	}
	if c.Database == "" {
		return fmt.Errorf("arangodb database name is required")
	}
	return nil
}

const graphName = "keywordgraph"

// ArangoStore persists keywords, the clusters they were grouped into, and
// the "related_to" edges the Enricher/ML Adjuster imply between terms, so
// later runs can query prior-run context instead of recomputing it.
type ArangoStore struct {
	arangoClient arangodb.Client
	db           arangodb.Database
	cfg          ArangoConfig
}

func NewArangoStore(ctx context.Context, cfg ArangoConfig) (*ArangoStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("arangodb config: %w", err)
	}

	endpoint := connection.NewRoundRobinEndpoints([]string{cfg.URL})
	conn := connection.NewHttp2Connection(connection.DefaultHTTP2ConfigurationWrapper(endpoint, true))

	auth := connection.NewBasicAuth(cfg.Username, cfg.Password)
	if err := conn.SetAuthentication(auth); err != nil {
		return nil, fmt.Errorf("arangodb auth: %w", err)
	}

	return &ArangoStore{arangoClient: arangodb.NewClient(conn), cfg: cfg}, nil
}

func (s *ArangoStore) EnsureDatabase(ctx context.Context) error {
	exists, err := s.arangoClient.DatabaseExists(ctx, s.cfg.Database)
	if err != nil {
		return fmt.Errorf("check database exists: %w", err)
	}
	if !exists {
		if _, err := s.arangoClient.CreateDatabase(ctx, s.cfg.Database, nil); err != nil {
			return fmt.Errorf("create database: %w", err)
		}
		slog.InfoContext(ctx, "arangodb database created", "database", s.cfg.Database)
	}

	db, err := s.arangoClient.GetDatabase(ctx, s.cfg.Database, nil)
	if err != nil {
		return fmt.Errorf("get database: %w", err)
	}
	s.db = db
	return nil
}

func (s *ArangoStore) EnsureCollections(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized, call EnsureDatabase first")
	}

	if err := s.ensureCollection(ctx, "keywords", false); err != nil {
		return err
	}
	if err := s.ensureCollection(ctx, "clusters", false); err != nil {
		return err
	}
	if err := s.ensureCollection(ctx, "related_to", true); err != nil {
		return err
	}
	if err := s.ensureCollection(ctx, "member_of", true); err != nil {
		return err
	}

	return s.ensureGraph(ctx)
}

func (s *ArangoStore) ensureCollection(ctx context.Context, name string, isEdge bool) error {
	exists, err := s.db.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("check collection %s exists: %w", name, err)
	}
	if exists {
		return nil
	}

	props := &arangodb.CreateCollectionPropertiesV2{}
	colType := arangodb.CollectionTypeDocument
	if isEdge {
		colType = arangodb.CollectionTypeEdge
	}
	props.Type = &colType

	if _, err := s.db.CreateCollectionV2(ctx, name, props); err != nil {
		return fmt.Errorf("create collection %s: %w", name, err)
	}
	slog.InfoContext(ctx, "arangodb collection created", "collection", name, "is_edge", isEdge)
	return nil
}

func (s *ArangoStore) ensureGraph(ctx context.Context) error {
	exists, err := s.db.GraphExists(ctx, graphName)
	if err != nil {
		return fmt.Errorf("check graph exists: %w", err)
	}
	if exists {
		return nil
	}

	graphDef := &arangodb.GraphDefinition{
		Name: graphName,
		EdgeDefinitions: []arangodb.EdgeDefinition{
			{Collection: "related_to", From: []string{"keywords"}, To: []string{"keywords"}},
			{Collection: "member_of", From: []string{"keywords"}, To: []string{"clusters"}},
		},
	}

	if _, err := s.db.CreateGraph(ctx, graphName, graphDef, nil); err != nil {
		return fmt.Errorf("create graph: %w", err)
	}
	slog.InfoContext(ctx, "arangodb graph created", "graph", graphName)
	return nil
}

// IngestKeywords upserts one document per keyword, keyed by its
// normalized term so repeated runs refresh rather than duplicate.
func (s *ArangoStore) IngestKeywords(ctx context.Context, runID string, keywords []model.Keyword) error {
	if len(keywords) == 0 {
		return nil
	}

	col, err := s.db.GetCollection(ctx, "keywords", nil)
	if err != nil {
		return fmt.Errorf("get collection keywords: %w", err)
	}

	docs := make([]map[string]any, len(keywords))
	for i, k := range keywords {
		docs[i] = map[string]any{
			"_key":          termKey(k.NormalizedTerm()),
			"term":          k.Term,
			"search_volume": k.SearchVolume,
			"cpc":           k.CPC,
			"competition":   k.Competition,
			"intent":        string(k.Intent),
			"score":         k.Score,
			"source":        k.Source,
			"run_id":        runID,
			"collected_at":  k.CollectedAt.Format(time.RFC3339),
		}
	}

	_, err = col.CreateDocuments(ctx, docs, &arangodb.CollectionDocumentCreateOptions{OverwriteMode: arangodb.CollectionDocumentCreateOverwriteModeUpdate})
	if err != nil {
		return fmt.Errorf("ingest keywords: %w", err)
	}
	return nil
}

// IngestCluster creates the cluster document if it does not exist yet (an
// existing one is left unchanged, topic included) and inserts a member_of
// edge from each of its keywords to it.
func (s *ArangoStore) IngestCluster(ctx context.Context, cluster model.Cluster) error {
	clusterCol, err := s.db.GetCollection(ctx, "clusters", nil)
	if err != nil {
		return fmt.Errorf("get collection clusters: %w", err)
	}

	key := termKey(cluster.ID)
	_, err = clusterCol.CreateDocument(ctx, map[string]any{"_key": key, "topic": cluster.Topic})
	if err != nil && !arangodb.IsConflict(err) {
		return fmt.Errorf("ingest cluster: %w", err)
	}

	if len(cluster.Keywords) == 0 {
		return nil
	}

	edgeCol, err := s.db.GetCollection(ctx, "member_of", nil)
	if err != nil {
		return fmt.Errorf("get collection member_of: %w", err)
	}

	edges := make([]map[string]any, len(cluster.Keywords))
	for i, k := range cluster.Keywords {
		edges[i] = map[string]any{
			"_from": "keywords/" + termKey(k.NormalizedTerm()),
			"_to":   "clusters/" + key,
			"order": k.ClusterOrder,
		}
	}

	_, err = edgeCol.CreateDocuments(ctx, edges, nil)
	if err != nil {
		return fmt.Errorf("ingest member_of edges: %w", err)
	}
	return nil
}

// RelateTerms records a "related_to" edge between two terms, used to
// capture synonym/co-occurrence links the Enricher or ML Adjuster found.
func (s *ArangoStore) RelateTerms(ctx context.Context, a, b string, weight float64) error {
	edgeCol, err := s.db.GetCollection(ctx, "related_to", nil)
	if err != nil {
		return fmt.Errorf("get collection related_to: %w", err)
	}

	_, err = edgeCol.CreateDocument(ctx, map[string]any{
		"_from":  "keywords/" + termKey(a),
		"_to":    "keywords/" + termKey(b),
		"weight": weight,
	})
	if err != nil {
		return fmt.Errorf("relate terms: %w", err)
	}
	return nil
}

// GetRelated traverses up to depth hops of "related_to" edges from term,
// returning the terms found.
func (s *ArangoStore) GetRelated(ctx context.Context, term string, depth int) ([]string, error) {
	if depth <= 0 {
		depth = 1
	}

	query := `
		FOR v IN 1..@depth ANY @start GRAPH @graph
			OPTIONS { edgeCollections: ["related_to"] }
			LIMIT 30
			RETURN v.term
	`

	cursor, err := s.db.Query(ctx, query, &arangodb.QueryOptions{
		BindVars: map[string]any{
			"start": "keywords/" + termKey(term),
			"depth": depth,
			"graph": graphName,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("query related terms: %w", err)
	}
	defer cursor.Close()

	var related []string
	for cursor.HasMore() {
		var t string
		if _, err := cursor.ReadDocument(ctx, &t); err != nil {
			return nil, fmt.Errorf("read related term: %w", err)
		}
		related = append(related, t)
	}
	return related, nil
}

func (s *ArangoStore) Close() error {
	return nil
}

func termKey(term string) string {
	h := md5.Sum([]byte(term)) //nolint:gosec
	return hex.EncodeToString(h[:])
}
