package llmquery

import (
	"github.com/onset-project/onset/pkg/llm"
)

// Stage messages published to the progress cache.
const (
	msgQueryingERL        = "Querying entities and relations"
	msgFetchingCandidates = "Fetching possible candidates"
	msgQueryingCandidates = "Querying candidates"
	msgEnrichingResults   = "Enriching results"
	msgQueryCompleted     = "Query completed"
)

// erlSystemPrompt instructs the free-generation stage.
const erlSystemPrompt = `Return all the entity relations and constraints within the prompt in the form of JSON output. The output should be a list of all entities and their constraints, as well as the relations between them. Make sure to include all entities and targets in the list of entities. Constraints should only be included in the list of entities they are associated with.`

// constrainedSystemPrompt instructs the constrained regeneration stage.
const constrainedSystemPrompt = `Return all the entities, relations, and constraints within the query in the form of JSON output. The output should be a list of all entities and their relations between them, with additional constraints if they are present in the query.`

// erlExample is the fixed one-shot example folded into generation calls
// unless zero-shot mode is requested.
var erlExample = llm.Example{
	Input: "the birth place of an author of a work where the author is born after 1990",
	Output: `{"relations":[` +
		`{"entity":"person 1","relation":"author","target":"work 1"},` +
		`{"entity":"person 1","relation":"birth place","target":"place 1"}],` +
		`"entities":[` +
		`{"identifier":"person 1","type":"person","constraints":[{"property":"birth_date","value":"1990","modifier":"greater_than"}]},` +
		`{"identifier":"work 1","type":"work","constraints":[]},` +
		`{"identifier":"place 1","type":"place","constraints":[]}]}`,
}
