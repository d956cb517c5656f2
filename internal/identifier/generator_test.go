package identifier

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTicketNumber_Format(t *testing.T) {
	g := NewGenerator("MOCK-")
	g.now = func() time.Time { return time.UnixMilli(1760256333042) }

	n := g.NewTicketNumber()
	assert.True(t, strings.HasPrefix(n, "MOCK-17602563330420001"), n)
	assert.Len(t, n, len("MOCK-")+13+4+4)
}

func TestNewTicketNumber_UniqueUnderConcurrency(t *testing.T) {
	g := NewGenerator("MOCK-")
	frozen := time.Now()
	g.now = func() time.Time { return frozen }

	const workers = 16
	const perWorker = 500

	var mu sync.Mutex
	seen := make(map[string]struct{}, workers*perWorker)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]string, 0, perWorker)
			for i := 0; i < perWorker; i++ {
				local = append(local, g.NewTicketNumber())
			}
			mu.Lock()
			for _, n := range local {
				seen[n] = struct{}{}
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, seen, workers*perWorker)
}

func TestNewArticleAndSessionID_Distinct(t *testing.T) {
	g := NewGenerator("")
	a, b := g.NewArticleID(), g.NewArticleID()
	assert.NotEqual(t, a, b)
	assert.NotEqual(t, g.NewSessionID(), g.NewSessionID())
}
