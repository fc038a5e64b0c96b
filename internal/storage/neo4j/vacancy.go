package neo4j

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/jobradar/jobradar/internal/domain"
	"github.com/jobradar/jobradar/internal/repository"

	pkgneo4j "github.com/jobradar/jobradar/pkg/neo4j"
)

// Ensure VacancyRepository implements repository.VacancyRepository
var _ repository.VacancyRepository = (*VacancyRepository)(nil)

// VacancyRepository implements repository.VacancyRepository with Neo4j.
// Provenance lives on SEEN_ON relationships to Source nodes, one per site,
// so URL and native-id lookups stay indexable.
type VacancyRepository struct {
	client *pkgneo4j.Client
}

// NewVacancyRepository creates a VacancyRepository with a Neo4j client
func NewVacancyRepository(client *pkgneo4j.Client) *VacancyRepository {
	return &VacancyRepository{
		client: client,
	}
}

const vacancyReturn = `
	RETURN v,
	       collect({site: src.site, url: seen.url, nativeId: seen.nativeId, lastSeenAt: seen.lastSeenAt}) AS sources
`

// GetByID loads one vacancy with its provenance
func (r *VacancyRepository) GetByID(ctx context.Context, id domain.VacancyID) (*domain.Vacancy, error) {
	query := `
		MATCH (v:Vacancy {id: $id})
		OPTIONAL MATCH (v)-[seen:SEEN_ON]->(src:Source)
	` + vacancyReturn

	vacancies, err := r.query(ctx, query, map[string]interface{}{"id": id.String()})
	if err != nil {
		return nil, err
	}
	if len(vacancies) == 0 {
		return nil, repository.ErrNotFound
	}
	return &vacancies[0], nil
}

// FindByDetailURL looks up a vacancy that has url recorded for any source
func (r *VacancyRepository) FindByDetailURL(ctx context.Context, url string) (*domain.Vacancy, error) {
	query := `
		MATCH (v:Vacancy)-[hit:SEEN_ON]->(:Source)
		WHERE hit.url = $url
		WITH DISTINCT v
		OPTIONAL MATCH (v)-[seen:SEEN_ON]->(src:Source)
	` + vacancyReturn + `
		LIMIT 1
	`

	vacancies, err := r.query(ctx, query, map[string]interface{}{"url": url})
	if err != nil {
		return nil, err
	}
	if len(vacancies) == 0 {
		return nil, nil
	}
	return &vacancies[0], nil
}

// FindByExternalID looks up a vacancy by a source site's native id
func (r *VacancyRepository) FindByExternalID(ctx context.Context, site, nativeID string) (*domain.Vacancy, error) {
	query := `
		MATCH (v:Vacancy)-[hit:SEEN_ON]->(s:Source {site: $site})
		WHERE hit.nativeId = $nativeId
		WITH DISTINCT v
		OPTIONAL MATCH (v)-[seen:SEEN_ON]->(src:Source)
	` + vacancyReturn + `
		LIMIT 1
	`

	vacancies, err := r.query(ctx, query, map[string]interface{}{"site": site, "nativeId": nativeID})
	if err != nil {
		return nil, err
	}
	if len(vacancies) == 0 {
		return nil, nil
	}
	return &vacancies[0], nil
}

// FindCandidates returns a bounded set of vacancies sharing a title or
// company signal with the query
func (r *VacancyRepository) FindCandidates(ctx context.Context, title string, companyID domain.CompanyID, limit int) ([]domain.Vacancy, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		MATCH (v:Vacancy)
		WHERE toLower(v.title) CONTAINS toLower($title)
		   OR ($companyId <> '' AND v.companyId = $companyId)
		WITH v
		LIMIT $limit
		OPTIONAL MATCH (v)-[seen:SEEN_ON]->(src:Source)
	` + vacancyReturn

	companyParam := ""
	if companyID != uuid.Nil {
		companyParam = companyID.String()
	}
	return r.query(ctx, query, map[string]interface{}{
		"title":     title,
		"companyId": companyParam,
		"limit":     limit,
	})
}

// Create inserts the vacancy. The MERGE on id makes a concurrent double
// create collapse onto one node instead of producing two canonical rows.
func (r *VacancyRepository) Create(ctx context.Context, v *domain.Vacancy) error {
	return r.write(ctx, v)
}

// Update rewrites the vacancy and its provenance
func (r *VacancyRepository) Update(ctx context.Context, v *domain.Vacancy) error {
	return r.write(ctx, v)
}

func (r *VacancyRepository) write(ctx context.Context, v *domain.Vacancy) error {
	session := r.client.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	query := `
		MERGE (v:Vacancy {id: $vacancy.id})
		SET v.title = $vacancy.title,
		    v.companyId = $vacancy.companyId,
		    v.location = $vacancy.location,
		    v.workModel = $vacancy.workModel,
		    v.technologies = $vacancy.technologies,
		    v.salaryMin = $vacancy.salaryMin,
		    v.salaryMax = $vacancy.salaryMax,
		    v.salaryCurrency = $vacancy.salaryCurrency,
		    v.experience = $vacancy.experience,
		    v.postedAt = datetime({epochMillis: $vacancy.postedAt}),
		    v.status = $vacancy.status
		WITH v
		CALL {
			WITH v
			MATCH (c:Company {id: v.companyId})
			MERGE (v)-[:POSTED_BY]->(c)
		}
		WITH v
		UNWIND $sources AS source
		MERGE (s:Source {site: source.site})
		MERGE (v)-[seen:SEEN_ON]->(s)
		SET seen.url = source.url,
		    seen.nativeId = source.nativeId,
		    seen.lastSeenAt = datetime({epochMillis: source.lastSeenAt})
	`

	companyParam := ""
	if v.CompanyID != uuid.Nil {
		companyParam = v.CompanyID.String()
	}
	technologies := v.Technologies
	if technologies == nil {
		technologies = []string{}
	}
	vacancyData := map[string]interface{}{
		"id":             v.ID.String(),
		"title":          v.Title,
		"companyId":      companyParam,
		"location":       v.Location,
		"workModel":      string(v.WorkModel),
		"technologies":   technologies,
		"salaryMin":      v.Salary.Min,
		"salaryMax":      v.Salary.Max,
		"salaryCurrency": v.Salary.Currency,
		"experience":     string(v.Experience),
		"postedAt":       v.PostedAt.UnixMilli(),
		"status":         string(v.Status),
	}
	sourcesData := make([]map[string]interface{}, 0, len(v.ScrapedSites))
	for site, prov := range v.ScrapedSites {
		sourcesData = append(sourcesData, map[string]interface{}{
			"site":       site,
			"url":        prov.URL,
			"nativeId":   prov.NativeID,
			"lastSeenAt": prov.LastSeenAt.UnixMilli(),
		})
	}

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, query, map[string]interface{}{
			"vacancy": vacancyData,
			"sources": sourcesData,
		})
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})
	if err != nil {
		return fmt.Errorf("neo4j: write vacancy %s: %w", v.ID, err)
	}
	return nil
}

func (r *VacancyRepository) query(ctx context.Context, query string, params map[string]interface{}) ([]domain.Vacancy, error) {
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

		vacancies := make([]domain.Vacancy, 0, len(records))
		for _, record := range records {
			v, ok := vacancyFromRecord(record)
			if !ok {
				continue
			}
			vacancies = append(vacancies, v)
		}
		return vacancies, nil
	})
	if err != nil {
		return nil, fmt.Errorf("neo4j: query vacancies: %w", err)
	}
	return rows.([]domain.Vacancy), nil
}

func vacancyFromRecord(record *neo4j.Record) (domain.Vacancy, bool) {
	nodeVal, ok := record.Get("v")
	if !ok {
		return domain.Vacancy{}, false
	}
	node, ok := nodeVal.(neo4j.Node)
	if !ok {
		return domain.Vacancy{}, false
	}
	props := node.Props

	id, err := uuid.Parse(stringProp(props, "id"))
	if err != nil {
		return domain.Vacancy{}, false
	}
	v := domain.Vacancy{
		ID:        id,
		Title:     stringProp(props, "title"),
		Location:  stringProp(props, "location"),
		WorkModel: domain.WorkModel(stringProp(props, "workModel")),
		Salary: domain.Salary{
			Min:      intProp(props, "salaryMin"),
			Max:      intProp(props, "salaryMax"),
			Currency: stringProp(props, "salaryCurrency"),
		},
		Experience: domain.ExperienceLevel(stringProp(props, "experience")),
		PostedAt:   timeProp(props, "postedAt"),
		Status:     domain.VacancyStatus(stringProp(props, "status")),
	}
	if companyID, err := uuid.Parse(stringProp(props, "companyId")); err == nil {
		v.CompanyID = companyID
	}
	if techs, ok := props["technologies"].([]interface{}); ok {
		for _, t := range techs {
			if s, ok := t.(string); ok {
				v.Technologies = append(v.Technologies, s)
			}
		}
	}

	if sourcesVal, ok := record.Get("sources"); ok {
		if sources, ok := sourcesVal.([]interface{}); ok {
			for _, sourceVal := range sources {
				source, ok := sourceVal.(map[string]interface{})
				if !ok {
					continue
				}
				site, _ := source["site"].(string)
				if site == "" {
					continue
				}
				url, _ := source["url"].(string)
				nativeID, _ := source["nativeId"].(string)
				v.RecordSource(site, url, nativeID, timeValue(source["lastSeenAt"]))
			}
		}
	}
	return v, true
}

func stringProp(props map[string]interface{}, key string) string {
	s, _ := props[key].(string)
	return s
}

func intProp(props map[string]interface{}, key string) int {
	switch n := props[key].(type) {
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}

func timeProp(props map[string]interface{}, key string) time.Time {
	return timeValue(props[key])
}

func timeValue(val interface{}) time.Time {
	switch dt := val.(type) {
	case time.Time:
		return dt
	case neo4j.LocalDateTime:
		return dt.Time()
	}
	return time.Time{}
}
