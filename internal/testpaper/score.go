package testpaper

import "github.com/emandor/kelas_service/internal/model"

type Result struct {
	Position      int    `json:"position"`
	Answer        string `json:"answer"`
	CorrectAnswer string `json:"correctAnswer"`
	Correct       bool   `json:"correct"`
}

// Score grades answers against qs by position. Missing answers count as
// wrong; matching is exact, like the option check at generation time.
func Score(qs []model.TestQuestion, answers []string) (int, []Result) {
	score := 0
	results := make([]Result, len(qs))
	for i, q := range qs {
		var a string
		if i < len(answers) {
			a = answers[i]
		}
		ok := a != "" && a == q.CorrectAnswer
		if ok {
			score++
		}
		results[i] = Result{Position: q.Position, Answer: a, CorrectAnswer: q.CorrectAnswer, Correct: ok}
	}
	return score, results
}
