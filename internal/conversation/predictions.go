package conversation

import (
	"database/sql"
	"fmt"
)

// LogPrediction stores one classification outcome.
func (s *Store) LogPrediction(p *Prediction) (*Prediction, error) {
	p.Phone = NormalizePhone(p.Phone)
	res, err := s.db.Exec(`INSERT INTO intent_predictions
		(phone, message_text, intent, confidence, tier, model, detected_lang, response_time_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Phone, p.MessageText, p.Intent, p.Confidence, p.Tier, p.Model, p.DetectedLang, p.ResponseTimeMs)
	if err != nil {
		return nil, fmt.Errorf("log prediction: %w", err)
	}
	p.ID, _ = res.LastInsertId()
	return p, nil
}

// RecordFeedback marks a prediction correct or incorrect. For incorrect
// predictions actualIntent records what the classifier should have said;
// it may be "unknown" when staff only know the prediction was wrong.
func (s *Store) RecordFeedback(predictionID int64, correct bool, actualIntent string) error {
	feedback := FeedbackCorrect
	if !correct {
		feedback = FeedbackIncorrect
		if actualIntent == "" {
			actualIntent = "unknown"
		}
	} else {
		actualIntent = ""
	}
	res, err := s.db.Exec(`UPDATE intent_predictions SET feedback = ?, actual_intent = ? WHERE id = ?`,
		feedback, actualIntent, predictionID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// LatestPredictionID returns the most recent prediction, optionally
// narrowed to one phone. Thumbs feedback without an explicit id lands
// on this row.
func (s *Store) LatestPredictionID(phone string) (int64, error) {
	query := `SELECT id FROM intent_predictions`
	args := []any{}
	if phone != "" {
		query += ` WHERE phone = ?`
		args = append(args, NormalizePhone(phone))
	}
	query += ` ORDER BY id DESC LIMIT 1`
	var id int64
	if err := s.db.QueryRow(query, args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// AccuracyBucket aggregates reviewed predictions for one grouping key.
type AccuracyBucket struct {
	Total        int      `json:"total"`
	Correct      int      `json:"correct"`
	Incorrect    int      `json:"incorrect"`
	AccuracyRate *float64 `json:"accuracyRate"` // nil until at least one review
}

// AccuracyReport is the aggregate view served by the intent accuracy API.
type AccuracyReport struct {
	Total        int                       `json:"total"`
	Reviewed     int                       `json:"reviewed"`
	Correct      int                       `json:"correct"`
	Incorrect    int                       `json:"incorrect"`
	AccuracyRate *float64                  `json:"accuracyRate"`
	ByIntent     map[string]AccuracyBucket `json:"byIntent"`
	ByTier       map[string]AccuracyBucket `json:"byTier"`
	ByModel      map[string]AccuracyBucket `json:"byModel"`
}

// Accuracy aggregates all predictions. Rates divide correct by reviewed
// predictions only; unreviewed rows count toward totals but never toward a
// rate, and a bucket with zero reviews reports a null rate.
func (s *Store) Accuracy() (*AccuracyReport, error) {
	report := &AccuracyReport{
		ByIntent: map[string]AccuracyBucket{},
		ByTier:   map[string]AccuracyBucket{},
		ByModel:  map[string]AccuracyBucket{},
	}

	rows, err := s.db.Query(`SELECT intent, tier, COALESCE(model,''), COALESCE(feedback,'') FROM intent_predictions`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var intent, tier, model, feedback string
		if err := rows.Scan(&intent, &tier, &model, &feedback); err != nil {
			return nil, err
		}
		report.Total++
		switch feedback {
		case FeedbackCorrect:
			report.Reviewed++
			report.Correct++
		case FeedbackIncorrect:
			report.Reviewed++
			report.Incorrect++
		}
		bump(report.ByIntent, intent, feedback)
		bump(report.ByTier, tier, feedback)
		if model != "" {
			bump(report.ByModel, model, feedback)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	report.AccuracyRate = rate(report.Correct, report.Incorrect)
	for k, b := range report.ByIntent {
		b.AccuracyRate = rate(b.Correct, b.Incorrect)
		report.ByIntent[k] = b
	}
	for k, b := range report.ByTier {
		b.AccuracyRate = rate(b.Correct, b.Incorrect)
		report.ByTier[k] = b
	}
	for k, b := range report.ByModel {
		b.AccuracyRate = rate(b.Correct, b.Incorrect)
		report.ByModel[k] = b
	}
	return report, nil
}

func bump(m map[string]AccuracyBucket, key, feedback string) {
	b := m[key]
	b.Total++
	switch feedback {
	case FeedbackCorrect:
		b.Correct++
	case FeedbackIncorrect:
		b.Incorrect++
	}
	m[key] = b
}

func rate(correct, incorrect int) *float64 {
	reviewed := correct + incorrect
	if reviewed == 0 {
		return nil
	}
	r := float64(correct) / float64(reviewed)
	return &r
}
