package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/alanyoungcy/hrcsafety/internal/domain"
)

// Location names the database and collections of one experiment.
type Location struct {
	Database  string
	Distances string
	Tasks     string
	Synergies string
}

// ExperimentStore reads and imports experiments. It implements the record
// and task result sources and importers of the domain package.
type ExperimentStore struct {
	client    *Client
	locations map[string]Location
}

var (
	_ domain.RecordSource       = (*ExperimentStore)(nil)
	_ domain.TaskResultSource   = (*ExperimentStore)(nil)
	_ domain.SynergySource      = (*ExperimentStore)(nil)
	_ domain.RecordImporter     = (*ExperimentStore)(nil)
	_ domain.TaskResultImporter = (*ExperimentStore)(nil)
)

// NewExperimentStore creates a store over the experiment locations.
func NewExperimentStore(client *Client, locations map[string]Location) *ExperimentStore {
	return &ExperimentStore{client: client, locations: locations}
}

func (s *ExperimentStore) locate(experiment string) (Location, error) {
	loc, ok := s.locations[experiment]
	if !ok {
		return Location{}, fmt.Errorf("mongo: experiment %q: %w", experiment, domain.ErrNotFound)
	}
	return loc, nil
}

// LoadRecords returns the distance rows of experiment in insertion order.
func (s *ExperimentStore) LoadRecords(ctx context.Context, experiment string) ([]domain.RawRecord, error) {
	loc, err := s.locate(experiment)
	if err != nil {
		return nil, err
	}
	coll, err := s.client.collection(ctx, loc.Database, loc.Distances)
	if err != nil {
		return nil, err
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetProjection(bson.D{{Key: "Recipe", Value: 1}, {Key: "Mean", Value: 1}, {Key: "Timestamp", Value: 1}})
	cur, err := coll.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo: find distances of %s: %w", experiment, err)
	}

	var out []domain.RawRecord
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("mongo: decode distances of %s: %w", experiment, err)
	}
	return out, nil
}

// recipeDurationPipeline groups task results by recipe into the span from
// the first task start to the last task end.
func recipeDurationPipeline() bson.A {
	return bson.A{
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$recipe"},
			{Key: "recipe_start", Value: bson.D{{Key: "$min", Value: "$t_start"}}},
			{Key: "recipe_end", Value: bson.D{{Key: "$max", Value: "$t_end"}}},
		}}},
		bson.D{{Key: "$addFields", Value: bson.D{
			{Key: "recipe_duration", Value: bson.D{{Key: "$subtract", Value: bson.A{"$recipe_end", "$recipe_start"}}}},
		}}},
		bson.D{{Key: "$project", Value: bson.D{
			{Key: "_id", Value: false},
			{Key: "recipe_name", Value: "$_id"},
			{Key: "recipe_start", Value: true},
			{Key: "recipe_end", Value: true},
			{Key: "recipe_duration", Value: true},
		}}},
		bson.D{{Key: "$sort", Value: bson.D{{Key: "recipe_name", Value: 1}}}},
	}
}

type recipeSpan struct {
	Name     string  `bson:"recipe_name"`
	Start    float64 `bson:"recipe_start"`
	End      float64 `bson:"recipe_end"`
	Duration float64 `bson:"recipe_duration"`
}

// LoadTaskResults returns one result per recipe spanning its first start to
// its last end, computed server side.
func (s *ExperimentStore) LoadTaskResults(ctx context.Context, experiment string) ([]domain.TaskResult, error) {
	loc, err := s.locate(experiment)
	if err != nil {
		return nil, err
	}
	coll, err := s.client.collection(ctx, loc.Database, loc.Tasks)
	if err != nil {
		return nil, err
	}

	cur, err := coll.Aggregate(ctx, recipeDurationPipeline())
	if err != nil {
		return nil, fmt.Errorf("mongo: aggregate task results of %s: %w", experiment, err)
	}
	var spans []recipeSpan
	if err := cur.All(ctx, &spans); err != nil {
		return nil, fmt.Errorf("mongo: decode task results of %s: %w", experiment, err)
	}

	out := make([]domain.TaskResult, 0, len(spans))
	for _, sp := range spans {
		if sp.Name == "" {
			continue
		}
		out = append(out, domain.TaskResult{Recipe: sp.Name, TStart: sp.Start, TEnd: sp.End})
	}
	return out, nil
}

// groupedSynergiesPipeline groups synergy documents by agent, each group
// ordered by agent skill and concurrent skill.
func groupedSynergiesPipeline() bson.A {
	return bson.A{
		bson.D{{Key: "$sort", Value: bson.D{
			{Key: "agent_skill", Value: 1},
			{Key: "concurrent_skill", Value: 1},
		}}},
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$agent"},
			{Key: "grouped_task_agent", Value: bson.D{{Key: "$push", Value: "$$ROOT"}}},
		}}},
		bson.D{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}},
	}
}

type agentSynergies struct {
	Agent string                 `bson:"_id"`
	Tasks []domain.SynergyRecord `bson:"grouped_task_agent"`
}

// LoadSynergies returns the synergy records of experiment grouped by agent.
// Experiments without a synergy collection return domain.ErrNotFound.
func (s *ExperimentStore) LoadSynergies(ctx context.Context, experiment string) ([]domain.SynergyRecord, error) {
	loc, err := s.locate(experiment)
	if err != nil {
		return nil, err
	}
	if loc.Synergies == "" {
		return nil, fmt.Errorf("mongo: %s has no synergy collection: %w", experiment, domain.ErrNotFound)
	}
	coll, err := s.client.collection(ctx, loc.Database, loc.Synergies)
	if err != nil {
		return nil, err
	}

	cur, err := coll.Aggregate(ctx, groupedSynergiesPipeline())
	if err != nil {
		return nil, fmt.Errorf("mongo: aggregate synergies of %s: %w", experiment, err)
	}
	var groups []agentSynergies
	if err := cur.All(ctx, &groups); err != nil {
		return nil, fmt.Errorf("mongo: decode synergies of %s: %w", experiment, err)
	}

	var out []domain.SynergyRecord
	for _, g := range groups {
		for _, rec := range g.Tasks {
			if rec.Agent == "" {
				rec.Agent = g.Agent
			}
			out = append(out, rec)
		}
	}
	return out, nil
}

// ImportRecords writes records into the experiment's distance collection,
// which must not exist yet.
func (s *ExperimentStore) ImportRecords(ctx context.Context, experiment string, records []domain.RawRecord) (int64, error) {
	loc, err := s.locate(experiment)
	if err != nil {
		return 0, err
	}
	docs := make([]any, len(records))
	for i, r := range records {
		docs[i] = r
	}
	return s.client.insertNew(ctx, loc.Database, loc.Distances, docs)
}

// ImportTaskResults writes results into the experiment's task collection,
// which must not exist yet.
func (s *ExperimentStore) ImportTaskResults(ctx context.Context, experiment string, results []domain.TaskResult) (int64, error) {
	loc, err := s.locate(experiment)
	if err != nil {
		return 0, err
	}
	docs := make([]any, len(results))
	for i, r := range results {
		docs[i] = r
	}
	return s.client.insertNew(ctx, loc.Database, loc.Tasks, docs)
}

// ImportDocuments writes exported documents unchanged, keeping every field
// of the export. target selects the distance, task or synergy collection.
func (s *ExperimentStore) ImportDocuments(ctx context.Context, experiment, target string, docs []map[string]any) (int64, error) {
	loc, err := s.locate(experiment)
	if err != nil {
		return 0, err
	}
	var coll string
	switch target {
	case "records":
		coll = loc.Distances
	case "task_results":
		coll = loc.Tasks
	case "synergies":
		coll = loc.Synergies
	}
	if coll == "" {
		return 0, fmt.Errorf("mongo: %s has no collection for target %q: %w", experiment, target, domain.ErrNotFound)
	}
	out := make([]any, len(docs))
	for i, d := range docs {
		out[i] = bson.M(d)
	}
	return s.client.insertNew(ctx, loc.Database, coll, out)
}
