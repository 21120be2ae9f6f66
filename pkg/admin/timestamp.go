// Copyright (c) 2025 David F. Watson
//
// This file is part of rsvp-site.
//
// rsvp-site is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Open an issue at https://github.com/davidfwatson/rsvp-site for commercial licensing options.


package admin

import (
	"encoding/json"
	"fmt"
	"time"
)

// naiveLayouts are ISO 8601 forms without a zone offset, as found in
// admin files written by the first version of the site. They are read as
// UTC.
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// ParseTimestamp accepts RFC 3339 or a zone-less ISO 8601 timestamp.
func ParseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// timestamp decodes through ParseTimestamp. Documents are always written
// back as RFC 3339 by time.Time.
type timestamp time.Time

func (t *timestamp) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*t = timestamp{}
		return nil
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	*t = timestamp(parsed)
	return nil
}

func (a *Admin) UnmarshalJSON(data []byte) error {
	type plain Admin
	aux := struct {
		*plain
		CreatedAt timestamp `json:"created_at"`
	}{plain: (*plain)(a)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	a.CreatedAt = time.Time(aux.CreatedAt)
	return nil
}

func (c *Credential) UnmarshalJSON(data []byte) error {
	type plain Credential
	aux := struct {
		*plain
		CreatedAt  timestamp  `json:"created_at"`
		LastUsedAt *timestamp `json:"last_used_at"`
	}{plain: (*plain)(c)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	c.CreatedAt = time.Time(aux.CreatedAt)
	if aux.LastUsedAt != nil {
		used := time.Time(*aux.LastUsedAt)
		c.LastUsedAt = &used
	}
	return nil
}

func (inv *Invite) UnmarshalJSON(data []byte) error {
	type plain Invite
	aux := struct {
		*plain
		CreatedAt timestamp `json:"created_at"`
	}{plain: (*plain)(inv)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	inv.CreatedAt = time.Time(aux.CreatedAt)
	return nil
}
