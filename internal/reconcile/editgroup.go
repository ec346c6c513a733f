package reconcile

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

// Edit-group tools per target wiki, for the toolforge editgroups instances
// that aggregate batch edits.
const (
	CommonsEditGroupTool  = "editgroups-commons"
	WikidataEditGroupTool = "editgroups"
)

// EditGroup tags a batch of related edits with a shared token so the whole
// batch can be inspected, and undone, as one group. The token rotates after
// a configured number of writes to keep groups reviewable.
//
// See https://www.wikidata.org/wiki/Wikidata:Edit_groups/Adding_a_tool
type EditGroup struct {
	tool   string
	token  string
	writes int
	size   int
}

// NewEditGroup creates an EditGroup for the given editgroups tool instance,
// rotating its token every size writes.
func NewEditGroup(tool string, size int) *EditGroup {
	if size <= 0 {
		size = 50
	}
	return &EditGroup{
		tool:  tool,
		token: newToken(),
		size:  size,
	}
}

// newToken returns a fresh 48-bit random token in unpadded lowercase hex,
// the format the editgroups tool extracts from edit summaries.
func newToken() string {
	id := uuid.New()
	var v uint64
	for _, b := range id[:6] {
		v = v<<8 | uint64(b)
	}
	return strconv.FormatUint(v, 16)
}

// Token returns the current batch token.
func (g *EditGroup) Token() string {
	return g.token
}

// Snippet returns the wikitext marker appended to edit summaries.
func (g *EditGroup) Snippet() string {
	return fmt.Sprintf("([[:toolforge:%s/b/CB/%s|details]])", g.tool, g.token)
}

// RecordWrite counts one completed write against the group and rotates the
// token once the batch size is reached.
func (g *EditGroup) RecordWrite() {
	g.writes++
	if g.writes < g.size {
		return
	}
	previous := g.token
	g.token = newToken()
	g.writes = 0
	logger.Info("Edit group rotated",
		"tool", g.tool,
		"previous_token", previous,
		"token", g.token,
		"batch_size", g.size)
}
