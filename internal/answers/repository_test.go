package answers

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"glossvoice/internal/domain"
)

func openTestRepository(t *testing.T) *Repository {
	t.Helper()
	repo, err := Open(filepath.Join(t.TempDir(), "answers.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestRepositoryAppendAndList(t *testing.T) {
	t.Parallel()

	repo := openTestRepository(t)
	ctx := context.Background()

	first, err := repo.Append(ctx, "photosynthesis", "  plants making food  ")
	require.NoError(t, err)
	assert.Equal(t, "plants making food", first.Value)
	assert.Equal(t, domain.AnswerKindText, first.Kind)
	assert.False(t, first.CreatedAt.IsZero())

	second, err := repo.Append(ctx, "photosynthesis", "https://cdn.example.com/a/b/123-answer.wav")
	require.NoError(t, err)
	assert.Equal(t, domain.AnswerKindAudio, second.Kind)

	_, err = repo.Append(ctx, "osmosis", "water moving")
	require.NoError(t, err)

	list, err := repo.List(ctx, "photosynthesis")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)
	assert.Equal(t, second.ID, list[1].ID)
	assert.Equal(t, 1, CountAudio(list))
}

func TestRepositoryRejectsEmptyAnswer(t *testing.T) {
	t.Parallel()

	repo := openTestRepository(t)
	_, err := repo.Append(context.Background(), "term", "   ")
	require.ErrorIs(t, err, ErrEmptyAnswer)
}

func TestRepositoryPersistsAcrossOpen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "answers.db")
	repo, err := Open(path)
	require.NoError(t, err)
	_, err = repo.Append(context.Background(), "term", "value")
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()
	list, err := reopened.List(context.Background(), "term")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "value", list[0].Value)
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	_, err := Open(" ")
	require.Error(t, err)
}

func TestIsAudioURL(t *testing.T) {
	t.Parallel()

	cases := map[string]bool{
		"https://cdn.example.com/x/answer.wav":   true,
		"http://cdn.example.com/x/answer.MP3":    true,
		"https://cdn.example.com/x/answer.wav?v": true,
		"memory://demo/abc-answer.wav":           true,
		"data:audio/wav;base64,UklGRg==":         true,
		"https://example.com/page.html":          false,
		"ftp://example.com/a.wav":                false,
		"answer.wav":                             false,
		"plants make food from light":            false,
	}
	for input, want := range cases {
		assert.Equal(t, want, IsAudioURL(input), input)
	}
}
