package models

import (
	"encoding/json"
	"strings"
)

// TagList decodes either a JSON array of tags or a single comma-separated
// string, the way the task form sends them.
type TagList []string

// UnmarshalJSON implements json.Unmarshaler.
func (l *TagList) UnmarshalJSON(data []byte) error {
	var joined string
	if err := json.Unmarshal(data, &joined); err == nil {
		if joined == "" {
			*l = TagList{}
			return nil
		}
		*l = strings.Split(joined, tagSeparator)
		return nil
	}
	var tags []string
	if err := json.Unmarshal(data, &tags); err != nil {
		return err
	}
	*l = tags
	return nil
}

// TaskForm is the task payload accepted from clients. Absent fields are nil.
type TaskForm struct {
	Title       *string  `json:"title"`
	Description *string  `json:"description"`
	Status      *string  `json:"status"`
	Priority    *string  `json:"priority"`
	DueDate     *string  `json:"dueDate"`
	Tags        *TagList `json:"tags"`
}

// Input validates the form for task creation.
func (f TaskForm) Input() (TaskInput, error) {
	var in TaskInput

	if f.Title == nil || strings.TrimSpace(*f.Title) == "" {
		return in, ErrEmptyTitle
	}
	in.Title = strings.TrimSpace(*f.Title)
	if f.Description != nil {
		in.Description = strings.TrimSpace(*f.Description)
	}
	if f.Status != nil && *f.Status != "" {
		s := Status(*f.Status)
		if !s.IsValid() {
			return in, ErrInvalidStatus
		}
		in.Status = s
	}
	if f.Priority != nil && *f.Priority != "" {
		p := Priority(*f.Priority)
		if !p.IsValid() {
			return in, ErrInvalidPriority
		}
		in.Priority = p
	}
	if f.DueDate != nil {
		due, err := ParseDueDate(*f.DueDate)
		if err != nil {
			return in, err
		}
		in.DueDate = due
	}
	if f.Tags != nil {
		in.Tags = NormalizeTags(*f.Tags)
	}
	return in, nil
}

// Update validates the form as a partial update. Only fields present in the
// form end up in the result.
func (f TaskForm) Update() (TaskUpdate, error) {
	var u TaskUpdate

	if f.Title != nil {
		title := strings.TrimSpace(*f.Title)
		if title == "" {
			return u, ErrEmptyTitle
		}
		u.Title = &title
	}
	if f.Description != nil {
		desc := strings.TrimSpace(*f.Description)
		u.Description = &desc
	}
	if f.Status != nil {
		s := Status(*f.Status)
		if !s.IsValid() {
			return u, ErrInvalidStatus
		}
		u.Status = &s
	}
	if f.Priority != nil {
		p := Priority(*f.Priority)
		if !p.IsValid() {
			return u, ErrInvalidPriority
		}
		u.Priority = &p
	}
	if f.DueDate != nil {
		due, err := ParseDueDate(*f.DueDate)
		if err != nil {
			return u, err
		}
		if due == nil {
			u.ClearDueDate = true
		} else {
			u.DueDate = due
		}
	}
	if f.Tags != nil {
		tags := NormalizeTags(*f.Tags)
		u.Tags = &tags
	}
	return u, nil
}
