package main

import (
	"time"

	"jellysync/internal/manifest"
	"jellysync/internal/planner"
	"jellysync/internal/state"
	"jellysync/internal/syncer"
)

type itemView struct {
	HashID  string `json:"hashid"`
	Title   string `json:"title"`
	Kind    string `json:"kind"`
	Year    int    `json:"year,omitempty"`
	Series  string `json:"series,omitempty"`
	Season  int    `json:"season,omitempty"`
	Episode int    `json:"episode,omitempty"`
	Server  string `json:"server"`
}

func newItemView(ref manifest.RemoteItemRef) itemView {
	return itemView{
		HashID:  ref.HashID,
		Title:   ref.Title,
		Kind:    ref.Kind,
		Year:    ref.Year,
		Series:  ref.SeriesName,
		Season:  ref.SeasonNumber,
		Episode: ref.EpisodeNumber,
		Server:  ref.Server,
	}
}

type fileView struct {
	Key         string `json:"key"`
	Role        string `json:"role"`
	Path        string `json:"path"`
	Action      string `json:"action"`
	Outcome     string `json:"outcome,omitempty"`
	Attempts    int    `json:"attempts,omitempty"`
	Transferred int64  `json:"transferred_bytes"`
	Size        int64  `json:"size"`
	Checksum    string `json:"checksum,omitempty"`
	Reason      string `json:"reason,omitempty"`
	Error       string `json:"error,omitempty"`
}

type resultView struct {
	Item   itemView   `json:"item"`
	Status string     `json:"status"`
	Reason string     `json:"reason,omitempty"`
	Error  string     `json:"error,omitempty"`
	Files  []fileView `json:"files"`
}

type reportView struct {
	Input       string         `json:"input"`
	Status      string         `json:"status"`
	Transferred int64          `json:"transferred_bytes"`
	Counts      map[string]int `json:"counts"`
	Items       []resultView   `json:"items"`
}

func newReportView(report syncer.Report) reportView {
	view := reportView{
		Input:       report.Input,
		Status:      string(report.Status),
		Transferred: report.Transferred(),
		Counts:      map[string]int{},
		Items:       make([]resultView, 0, len(report.Results)),
	}
	for outcome, n := range report.Counts() {
		view.Counts[string(outcome)] = n
	}
	for _, res := range report.Results {
		rv := resultView{
			Item:   newItemView(res.Item),
			Status: string(res.Status),
			Reason: res.Reason,
			Error:  errorString(res.Err),
			Files:  make([]fileView, 0, len(res.Files)),
		}
		for _, f := range res.Files {
			rv.Files = append(rv.Files, fileView{
				Key:         f.File.Key,
				Role:        string(f.File.Role),
				Path:        f.File.RelPath,
				Action:      string(f.Action),
				Outcome:     string(f.Outcome),
				Attempts:    f.Attempts,
				Transferred: f.Transferred,
				Size:        f.Size,
				Checksum:    f.Checksum,
				Reason:      f.Reason,
				Error:       errorString(f.Err),
			})
		}
		view.Items = append(view.Items, rv)
	}
	return view
}

type planView struct {
	Item      itemView   `json:"item"`
	Error     string     `json:"error,omitempty"`
	Remaining int64      `json:"remaining_bytes"`
	Files     []fileView `json:"files"`
}

func newPlanViews(plans []syncer.ItemPlan) []planView {
	views := make([]planView, 0, len(plans))
	for _, p := range plans {
		view := planView{
			Item:      newItemView(p.Item),
			Error:     errorString(p.Err),
			Remaining: p.Plan.RemainingBytes(),
			Files:     make([]fileView, 0, len(p.Plan.Steps)),
		}
		for _, step := range p.Plan.Steps {
			view.Files = append(view.Files, stepView(step))
		}
		views = append(views, view)
	}
	return views
}

func stepView(step planner.Step) fileView {
	return fileView{
		Key:         step.File.Key,
		Role:        string(step.File.Role),
		Path:        step.File.RelPath,
		Action:      string(step.Action),
		Transferred: step.Offset,
		Size:        step.File.Size,
		Reason:      step.Reason,
	}
}

type recordView struct {
	HashID       string    `json:"hashid"`
	Key          string    `json:"key"`
	Role         string    `json:"role"`
	Path         string    `json:"path"`
	State        string    `json:"state"`
	Size         int64     `json:"size"`
	BytesWritten int64     `json:"bytes_written"`
	Checksum     string    `json:"checksum,omitempty"`
	Attempts     int       `json:"attempts"`
	LastError    string    `json:"last_error,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func newRecordViews(records []state.Record) []recordView {
	views := make([]recordView, 0, len(records))
	for _, rec := range records {
		views = append(views, recordView{
			HashID:       rec.ItemHashID,
			Key:          rec.Key,
			Role:         string(rec.Role),
			Path:         rec.Path,
			State:        string(rec.State),
			Size:         rec.Size,
			BytesWritten: rec.BytesWritten,
			Checksum:     rec.Checksum,
			Attempts:     rec.Attempts,
			LastError:    rec.LastError,
			UpdatedAt:    rec.UpdatedAt,
		})
	}
	return views
}

func errorString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
