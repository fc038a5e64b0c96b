package neo4j

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/jobradar/jobradar/internal/domain"
	"github.com/jobradar/jobradar/internal/repository"

	pkgneo4j "github.com/jobradar/jobradar/pkg/neo4j"
)

// Ensure CompanyRepository implements repository.CompanyRepository
var _ repository.CompanyRepository = (*CompanyRepository)(nil)

// CompanyRepository implements repository.CompanyRepository with Neo4j
type CompanyRepository struct {
	client *pkgneo4j.Client
}

// NewCompanyRepository creates a CompanyRepository with a Neo4j client
func NewCompanyRepository(client *pkgneo4j.Client) *CompanyRepository {
	return &CompanyRepository{
		client: client,
	}
}

// GetByID loads one company
func (r *CompanyRepository) GetByID(ctx context.Context, id domain.CompanyID) (*domain.Company, error) {
	companies, err := r.query(ctx, `
		MATCH (c:Company {id: $id})
		RETURN c
	`, map[string]interface{}{"id": id.String()})
	if err != nil {
		return nil, err
	}
	if len(companies) == 0 {
		return nil, repository.ErrNotFound
	}
	return &companies[0], nil
}

// FindByDomain returns companies whose website or original website lives on
// the given host. Hosts are stored lowercased next to the raw URLs exactly
// so this lookup stays a property match.
func (r *CompanyRepository) FindByDomain(ctx context.Context, host string) ([]domain.Company, error) {
	return r.query(ctx, `
		MATCH (c:Company)
		WHERE c.websiteHost = $host OR c.originalWebsiteHost = $host
		RETURN c
	`, map[string]interface{}{"host": strings.ToLower(host)})
}

// FindByName looks up a company by case-insensitive exact name
func (r *CompanyRepository) FindByName(ctx context.Context, name string) (*domain.Company, error) {
	companies, err := r.query(ctx, `
		MATCH (c:Company)
		WHERE toLower(c.name) = toLower($name)
		RETURN c
		LIMIT 1
	`, map[string]interface{}{"name": name})
	if err != nil {
		return nil, err
	}
	if len(companies) == 0 {
		return nil, nil
	}
	return &companies[0], nil
}

// FindByAlias looks up a company carrying name on its alias list
func (r *CompanyRepository) FindByAlias(ctx context.Context, name string) (*domain.Company, error) {
	companies, err := r.query(ctx, `
		MATCH (c:Company)
		WHERE any(alias IN c.aliases WHERE toLower(alias) = toLower($name))
		RETURN c
		LIMIT 1
	`, map[string]interface{}{"name": name})
	if err != nil {
		return nil, err
	}
	if len(companies) == 0 {
		return nil, nil
	}
	return &companies[0], nil
}

// FindCandidates returns a bounded set of companies overlapping any of the
// given name words
func (r *CompanyRepository) FindCandidates(ctx context.Context, nameWords []string, limit int) ([]domain.Company, error) {
	if len(nameWords) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}
	words := make([]string, 0, len(nameWords))
	for _, w := range nameWords {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			words = append(words, w)
		}
	}
	return r.query(ctx, `
		MATCH (c:Company)
		WHERE any(word IN $words WHERE
			toLower(c.name) CONTAINS word
			OR any(alias IN c.aliases WHERE toLower(alias) CONTAINS word))
		RETURN c
		LIMIT $limit
	`, map[string]interface{}{"words": words, "limit": limit})
}

// Create inserts the company. MERGE on id keeps a concurrent double create
// from producing two nodes.
func (r *CompanyRepository) Create(ctx context.Context, c *domain.Company) error {
	return r.write(ctx, c)
}

// Update rewrites the company
func (r *CompanyRepository) Update(ctx context.Context, c *domain.Company) error {
	return r.write(ctx, c)
}

func (r *CompanyRepository) write(ctx context.Context, c *domain.Company) error {
	session := r.client.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	query := `
		MERGE (c:Company {id: $company.id})
		SET c.name = $company.name,
		    c.website = $company.website,
		    c.websiteHost = $company.websiteHost,
		    c.originalWebsite = $company.originalWebsite,
		    c.originalWebsiteHost = $company.originalWebsiteHost,
		    c.location = $company.location,
		    c.industry = $company.industry,
		    c.description = $company.description,
		    c.aliases = $company.aliases
	`

	aliases := c.Aliases
	if aliases == nil {
		aliases = []string{}
	}
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, query, map[string]interface{}{
			"company": map[string]interface{}{
				"id":                  c.ID.String(),
				"name":                c.Name,
				"website":             c.Website,
				"websiteHost":         hostOf(c.Website),
				"originalWebsite":     c.OriginalWebsite,
				"originalWebsiteHost": hostOf(c.OriginalWebsite),
				"location":            c.Location,
				"industry":            c.Industry,
				"description":         c.Description,
				"aliases":             aliases,
			},
		})
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})
	if err != nil {
		return fmt.Errorf("neo4j: write company %s: %w", c.ID, err)
	}
	return nil
}

// hostOf mirrors the matcher's domain extraction so stored hosts and query
// hosts agree.
func hostOf(website string) string {
	s := strings.ToLower(strings.TrimSpace(website))
	if s == "" {
		return ""
	}
	if idx := strings.Index(s, "://"); idx >= 0 {
		s = s[idx+3:]
	}
	s = strings.TrimPrefix(s, "www.")
	if idx := strings.IndexAny(s, "/?#"); idx >= 0 {
		s = s[:idx]
	}
	if idx := strings.IndexByte(s, ':'); idx >= 0 {
		s = s[:idx]
	}
	return s
}

func (r *CompanyRepository) query(ctx context.Context, query string, params map[string]interface{}) ([]domain.Company, error) {
	session := r.client.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	rows, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		records, err := result.Collect(ctx)
		if err != nil {
			return nil, err
		}

		companies := make([]domain.Company, 0, len(records))
		for _, record := range records {
			c, ok := companyFromRecord(record)
			if !ok {
				continue
			}
			companies = append(companies, c)
		}
		return companies, nil
	})
	if err != nil {
		return nil, fmt.Errorf("neo4j: query companies: %w", err)
	}
	return rows.([]domain.Company), nil
}

func companyFromRecord(record *neo4j.Record) (domain.Company, bool) {
	nodeVal, ok := record.Get("c")
	if !ok {
		return domain.Company{}, false
	}
	node, ok := nodeVal.(neo4j.Node)
	if !ok {
		return domain.Company{}, false
	}
	props := node.Props

	id, err := uuid.Parse(stringProp(props, "id"))
	if err != nil {
		return domain.Company{}, false
	}
	c := domain.Company{
		ID:              id,
		Name:            stringProp(props, "name"),
		Website:         stringProp(props, "website"),
		OriginalWebsite: stringProp(props, "originalWebsite"),
		Location:        stringProp(props, "location"),
		Industry:        stringProp(props, "industry"),
		Description:     stringProp(props, "description"),
	}
	if aliases, ok := props["aliases"].([]interface{}); ok {
		for _, a := range aliases {
			if s, ok := a.(string); ok {
				c.Aliases = append(c.Aliases, s)
			}
		}
	}
	return c, true
}
