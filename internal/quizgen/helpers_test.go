package quizgen

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/emandor/kelas_service/internal/providers"
)

type fakeReply struct {
	text    string
	err     error
	openErr error
}

// fakeFactory hands out sessions that answer from a FIFO of canned replies
// and records which key each attempt used.
type fakeFactory struct {
	mu      sync.Mutex
	replies []fakeReply
	keys    []string
	prompts []string
}

func newFakeFactory(replies ...fakeReply) *fakeFactory {
	return &fakeFactory{replies: replies}
}

func (f *fakeFactory) Open(_ context.Context, key string) (providers.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key)
	if len(f.replies) > 0 && f.replies[0].openErr != nil {
		r := f.replies[0]
		f.replies = f.replies[1:]
		return nil, r.openErr
	}
	return &fakeSession{f: f}, nil
}

func (f *fakeFactory) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.keys)
}

type fakeSession struct{ f *fakeFactory }

func (s *fakeSession) Name() providers.SourceName { return "FAKE" }

func (s *fakeSession) Ask(_ context.Context, prompt string) (providers.Reply, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	s.f.prompts = append(s.f.prompts, prompt)
	if len(s.f.replies) == 0 {
		return providers.Reply{}, fmt.Errorf("no canned reply")
	}
	r := s.f.replies[0]
	s.f.replies = s.f.replies[1:]
	if r.err != nil {
		return providers.Reply{}, r.err
	}
	return providers.Reply{Text: r.text}, nil
}

func validRecord(i int) map[string]any {
	opts := []string{
		fmt.Sprintf("q%d-a", i),
		fmt.Sprintf("q%d-b", i),
		fmt.Sprintf("q%d-c", i),
		fmt.Sprintf("q%d-d", i),
	}
	return map[string]any{
		"question":      fmt.Sprintf("Question %d?", i),
		"options":       opts,
		"correctAnswer": opts[i%4],
	}
}

func quizJSON(records ...map[string]any) string {
	b, err := json.Marshal(map[string]any{"questions": records})
	if err != nil {
		panic(err)
	}
	return string(b)
}

func validQuiz(n int) string {
	recs := make([]map[string]any, 0, n)
	for i := 0; i < n; i++ {
		recs = append(recs, validRecord(i))
	}
	return quizJSON(recs...)
}
