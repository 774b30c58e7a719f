package mapper

import (
	"errors"
	"fmt"
	"time"

	"github.com/tidwall/gjson"

	"github.com/sappyoak/sappyoak-site-functions/internal/model"
)

var ErrUnsupportedEvent = errors.New("unsupported github event")

// payloadObjects names the payload sub-object holding the generic
// id/created_at/url triple when it differs from the event name.
var payloadObjects = map[string]string{
	"issues": "issue",
}

type ActivityMapper interface {
	Map(event string, body []byte) (model.ActivityItem, error)
}

type GitHubActivityMapper struct{}

func NewGitHubActivityMapper() *GitHubActivityMapper {
	return &GitHubActivityMapper{}
}

// Map normalizes an authenticated GitHub webhook body into an ActivityItem.
func (m *GitHubActivityMapper) Map(event string, body []byte) (model.ActivityItem, error) {
	if !IsAllowedEvent(event) {
		return model.ActivityItem{}, fmt.Errorf("%w: %q", ErrUnsupportedEvent, event)
	}
	if !gjson.ValidBytes(body) {
		return model.ActivityItem{}, fmt.Errorf("mapping %s: payload is not valid json", event)
	}

	payload := gjson.ParseBytes(body)
	item := model.ActivityItem{
		SourceEventType: event,
		RepoID:          payload.Get("repository.id").String(),
		RepoName:        payload.Get("repository.name").String(),
	}

	switch event {
	case "push":
		m.mapPush(payload, &item)
	case "package":
		m.mapPackage(payload, &item)
	default:
		m.mapDefault(event, payload, &item)
	}

	if item.ID == "" {
		return model.ActivityItem{}, fmt.Errorf("mapping %s: payload has no action id", event)
	}
	return item, nil
}

func (m *GitHubActivityMapper) mapPush(payload gjson.Result, item *model.ActivityItem) {
	commit := payload.Get("head_commit")
	item.ID = commit.Get("id").String()
	item.Link = commit.Get("url").String()
	item.ActionCreated = firstTime(commit.Get("timestamp"), payload.Get("repository.pushed_at"))
	item.Meta = map[string]any{
		"ref": payload.Get("ref").String(),
	}
}

func (m *GitHubActivityMapper) mapPackage(payload gjson.Result, item *model.ActivityItem) {
	pkg := payload.Get("package")
	item.ID = pkg.Get("id").String()
	item.ActionCreated = parseTime(pkg.Get("created_at"))

	link := pkg.Get("package_version.html_url")
	if !link.Exists() || link.String() == "" {
		link = pkg.Get("html_url")
	}
	item.Link = link.String()

	item.Meta = map[string]any{
		"name":         pkg.Get("name").String(),
		"package_type": pkg.Get("package_type").String(),
		"version":      metaValue(pkg.Get("package_version.version")),
	}
}

func (m *GitHubActivityMapper) mapDefault(event string, payload gjson.Result, item *model.ActivityItem) {
	objectName := event
	if name, ok := payloadObjects[event]; ok {
		objectName = name
	}

	object := payload.Get(objectName)
	item.ID = object.Get("id").String()
	item.Link = object.Get("url").String()
	item.ActionCreated = parseTime(object.Get("created_at"))
	item.Meta = eventMeta(event, object)
}

func eventMeta(event string, object gjson.Result) map[string]any {
	switch event {
	case "deployment":
		return map[string]any{
			"environment":          metaValue(object.Get("environment")),
			"original_environment": metaValue(object.Get("original_environment")),
			"ref":                  metaValue(object.Get("ref")),
		}
	case "issues":
		return map[string]any{"state": metaValue(object.Get("state"))}
	case "pull_request":
		return map[string]any{
			"owner": object.Get("author_association").String() == "OWNER",
			"title": metaValue(object.Get("title")),
		}
	case "release":
		return map[string]any{"prerelease": metaValue(object.Get("prerelease"))}
	default:
		return map[string]any{}
	}
}

// metaValue keeps meta values to the scalar kinds the feed schema allows.
func metaValue(r gjson.Result) any {
	switch r.Type {
	case gjson.String:
		return r.String()
	case gjson.Number:
		return r.Float()
	case gjson.True, gjson.False:
		return r.Bool()
	default:
		return nil
	}
}

func firstTime(results ...gjson.Result) time.Time {
	for _, r := range results {
		if t := parseTime(r); !t.IsZero() {
			return t
		}
	}
	return time.Time{}
}

// parseTime accepts RFC 3339 strings and unix seconds; GitHub uses both.
func parseTime(r gjson.Result) time.Time {
	switch r.Type {
	case gjson.String:
		t, err := time.Parse(time.RFC3339, r.String())
		if err != nil {
			return time.Time{}
		}
		return t.UTC()
	case gjson.Number:
		return time.Unix(r.Int(), 0).UTC()
	default:
		return time.Time{}
	}
}
