package hotreload_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/floridify/floridify/pkg/hotreload"
	"github.com/floridify/floridify/pkg/search"
)

func TestGetEngineBuildsOnceWithinCheckWindow(t *testing.T) {
	var builds int32
	fp := hotreload.Fingerprint{CorpusName: "en", VocabularyHash: "h1", Version: "0.1.0"}
	m := hotreload.NewManager(time.Hour, true,
		func([]string) (hotreload.Fingerprint, error) { return fp, nil },
		func([]string) (*search.Engine, error) {
			atomic.AddInt32(&builds, 1)
			return search.New(nil, nil, nil, nil), nil
		},
	)

	for i := 0; i < 5; i++ {
		_, err := m.GetEngine([]string{"en"}, false)
		require.NoError(t, err)
	}
	assert.EqualValues(t, 1, atomic.LoadInt32(&builds))
}

func TestGetEngineRebuildsOnFingerprintChange(t *testing.T) {
	var builds int32
	current := hotreload.Fingerprint{CorpusName: "en", VocabularyHash: "h1", Version: "0.1.0"}
	m := hotreload.NewManager(0, true,
		func([]string) (hotreload.Fingerprint, error) { return current, nil },
		func([]string) (*search.Engine, error) {
			atomic.AddInt32(&builds, 1)
			return search.New(nil, nil, nil, nil), nil
		},
	)

	_, err := m.GetEngine([]string{"en"}, false)
	require.NoError(t, err)
	current = hotreload.Fingerprint{CorpusName: "en", VocabularyHash: "h2", Version: "0.1.1"}
	_, err = m.GetEngine([]string{"en"}, false)
	require.NoError(t, err)

	assert.EqualValues(t, 2, atomic.LoadInt32(&builds))
}

func TestConcurrentRebuildsCoalesce(t *testing.T) {
	var builds int32
	fp := hotreload.Fingerprint{CorpusName: "en", VocabularyHash: "h1", Version: "0.1.0"}
	release := make(chan struct{})
	m := hotreload.NewManager(0, true,
		func([]string) (hotreload.Fingerprint, error) { return fp, nil },
		func([]string) (*search.Engine, error) {
			atomic.AddInt32(&builds, 1)
			<-release
			return search.New(nil, nil, nil, nil), nil
		},
	)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = m.GetEngine([]string{"en"}, false)
		}()
	}
	time.Sleep(10 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, atomic.LoadInt32(&builds))
}

func TestBuildFailureKeepsPreviousEngine(t *testing.T) {
	calls := 0
	fp := hotreload.Fingerprint{CorpusName: "en", VocabularyHash: "h1", Version: "0.1.0"}
	fp2 := hotreload.Fingerprint{CorpusName: "en", VocabularyHash: "h2", Version: "0.1.1"}
	current := fp
	m := hotreload.NewManager(0, true,
		func([]string) (hotreload.Fingerprint, error) { return current, nil },
		func([]string) (*search.Engine, error) {
			calls++
			if calls == 2 {
				return nil, assertErr
			}
			return search.New(nil, nil, nil, nil), nil
		},
	)

	first, err := m.GetEngine([]string{"en"}, false)
	require.NoError(t, err)
	require.NotNil(t, first)

	current = fp2
	second, err := m.GetEngine([]string{"en"}, false)
	require.NoError(t, err)
	assert.Same(t, first, second)
}

var assertErr = &stubError{"build failed"}

type stubError struct{ msg string }

func (e *stubError) Error() string { return e.msg }

func TestStatusReportsEngineLoadedAndFingerprint(t *testing.T) {
	fp := hotreload.Fingerprint{CorpusName: "en", VocabularyHash: "h1", Version: "0.1.0"}
	m := hotreload.NewManager(time.Hour, false,
		func([]string) (hotreload.Fingerprint, error) { return fp, nil },
		func([]string) (*search.Engine, error) { return search.New(nil, nil, nil, nil), nil },
	)
	status := m.Status()
	assert.False(t, status.EngineLoaded)
	assert.False(t, status.SemanticEnabled)

	_, err := m.GetEngine([]string{"en"}, false)
	require.NoError(t, err)
	status = m.Status()
	assert.True(t, status.EngineLoaded)
	assert.Equal(t, fp, status.CorpusFingerprint)
}
