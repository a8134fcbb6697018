package analysis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"text/template"
)

// subjectHours は科目別の学習時間。JSONではキー順を保つため配列で出す。
type subjectHours struct {
	Subject string  `json:"subject"`
	Hours   float64 `json:"hours"`
}

type sessionSummary struct {
	Date          string  `json:"date"`
	Subject       string  `json:"subject"`
	DurationHours float64 `json:"duration_hours"`
	Notes         string  `json:"notes"`
}

type subjectRate struct {
	Name       string  `json:"name"`
	HourlyRate float64 `json:"hourly_rate"`
}

type goalSummary struct {
	Title              string  `json:"title"`
	TargetAmount       float64 `json:"target_amount"`
	CurrentAmount      float64 `json:"current_amount"`
	Deadline           string  `json:"deadline"`
	IsAchieved         bool    `json:"is_achieved"`
	ProgressPercentage float64 `json:"progress_percentage"`
}

// LearningSummary はプロンプトに埋め込む学習データ。
type LearningSummary struct {
	Purpose        string
	MonthHours     float64
	WeekHours      float64
	SubjectHours   []subjectHours
	RecentSessions []sessionSummary
	Subjects       []subjectRate
	Goals          []goalSummary
}

var promptTemplate = template.Must(template.New("analysis").Funcs(template.FuncMap{
	"json": toJSON,
}).Parse(`あなたは学習コーチAIです。以下のデータを分析して、ユーザーの学習状況についてのインサイトと今後のアクションプランを提案してください。

【学習の目的】
{{.Purpose}}

【学習データ】
- 今月の合計勉強時間: {{printf "%.2f" .MonthHours}}時間
- 今週の合計勉強時間: {{printf "%.2f" .WeekHours}}時間

【科目別勉強時間（過去30日）】
{{json .SubjectHours}}

【科目情報（時給換算額）】
{{json .Subjects}}

【最近の学習セッション】
{{json .RecentSessions}}

【貯金目標情報】
{{json .Goals}}

学習状況を分析して、以下の点についてのインサイトと今後のアクションを提案してください：
1. 学習パターンの分析（いつ、どのように勉強しているか）
2. 学習効率の評価と改善点
3. 目標達成に向けた具体的なネクストアクション
4. モチベーション維持のためのアドバイス
5. 学習目的に照らした進捗評価

回答は日本語で、友好的かつ励ましの要素を含め、具体的なアドバイスを提供してください。
箇条書きやリストを適切に使用して読みやすくしてください。
`))

// BuildPrompt は学習データから分析用プロンプトを組み立てる。
func BuildPrompt(s *LearningSummary) (string, error) {
	var buf bytes.Buffer
	if err := promptTemplate.Execute(&buf, s); err != nil {
		return "", fmt.Errorf("failed to render analysis prompt: %w", err)
	}
	return buf.String(), nil
}

// toJSON は日本語をエスケープせずにインデント付きJSONへ変換する。
func toJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}
