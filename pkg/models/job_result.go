package models

import (
	"time"

	"github.com/google/uuid"
)

// JobResult is the trained-model summary the worker writes once per completed
// job. It is immutable after creation.
type JobResult struct {
	ID                uuid.UUID           `db:"id"                 json:"id"`
	JobID             uuid.UUID           `db:"job_id"             json:"job_id"`
	ModelType         string              `db:"model_type"         json:"model_type"`
	Accuracy          float64             `db:"accuracy"           json:"accuracy"`
	Loss              float64             `db:"loss"               json:"loss"`
	TrainingTime      float64             `db:"training_time"      json:"training_time"`
	DatasetSize       int                 `db:"dataset_size"       json:"dataset_size"`
	FeaturesUsed      []string            `db:"features_used"      json:"features_used"`
	ModelSize         string              `db:"model_size"         json:"model_size"`
	DownloadURL       *string             `db:"download_url"       json:"download_url,omitempty"`
	APIEndpoint       *string             `db:"api_endpoint"       json:"api_endpoint,omitempty"`
	Metrics           JobMetrics          `db:"metrics"            json:"metrics"`
	FeatureImportance []FeatureImportance `db:"feature_importance" json:"feature_importance,omitempty"`
	PredictionsSample []PredictionSample  `db:"predictions_sample" json:"predictions_sample,omitempty"`
	CreatedAt         time.Time           `db:"created_at"         json:"created_at"`
}

type JobMetrics struct {
	Precision       float64 `json:"precision"`
	Recall          float64 `json:"recall"`
	F1Score         float64 `json:"f1_score"`
	ConfusionMatrix [][]int `json:"confusion_matrix,omitempty"`
}

type FeatureImportance struct {
	Feature    string  `json:"feature"`
	Importance float64 `json:"importance"`
}

// PredictionSample is one example prediction. Input is whatever the worker
// recorded for the row, usually an object keyed by feature name.
type PredictionSample struct {
	Input      any     `json:"input"`
	Predicted  any     `json:"predicted"`
	Confidence float64 `json:"confidence"`
}
