package mapper_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sappyoak/sappyoak-site-functions/internal/mapper"
)

var _ = Describe("GitHubActivityMapper", func() {
	var m *mapper.GitHubActivityMapper

	BeforeEach(func() {
		m = mapper.NewGitHubActivityMapper()
	})

	Describe("allow-list", func() {
		It("accepts listed actions and wildcard events", func() {
			Expect(mapper.IsAllowedAction("pull_request", "opened")).To(BeTrue())
			Expect(mapper.IsAllowedAction("pull_request", "merged")).To(BeFalse())
			Expect(mapper.IsAllowedAction("issues", "labeled")).To(BeTrue())
			Expect(mapper.IsAllowedAction("push", "")).To(BeTrue())
			Expect(mapper.IsAllowedAction("watch", "started")).To(BeFalse())
		})

		It("reports wildcard events", func() {
			Expect(mapper.IsWildcardEvent("push")).To(BeTrue())
			Expect(mapper.IsWildcardEvent("issues")).To(BeTrue())
			Expect(mapper.IsWildcardEvent("release")).To(BeFalse())
		})

		It("lists events in a stable order", func() {
			Expect(mapper.AllowedEvents()).To(Equal([]string{
				"deployment", "issues", "package", "pull_request", "push", "release",
			}))
		})
	})

	Describe("Map", func() {
		It("maps push events from the head commit", func() {
			body := []byte(`{
				"ref": "refs/heads/main",
				"head_commit": {"id": "abc123", "url": "https://github.com/o/r/commit/abc123", "timestamp": "2024-05-01T10:00:00Z"},
				"repository": {"id": 42, "name": "r", "pushed_at": 1714557600}
			}`)

			item, err := m.Map("push", body)
			Expect(err).NotTo(HaveOccurred())
			Expect(item.SourceEventType).To(Equal("push"))
			Expect(item.ID).To(Equal("abc123"))
			Expect(item.Link).To(Equal("https://github.com/o/r/commit/abc123"))
			Expect(item.ActionCreated).To(Equal(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)))
			Expect(item.RepoID).To(Equal("42"))
			Expect(item.RepoName).To(Equal("r"))
			Expect(item.Meta).To(Equal(map[string]any{"ref": "refs/heads/main"}))
		})

		It("falls back to the repository push time for push events", func() {
			body := []byte(`{
				"ref": "refs/heads/main",
				"head_commit": {"id": "abc123", "url": "u"},
				"repository": {"id": 42, "name": "r", "pushed_at": 1714557600}
			}`)

			item, err := m.Map("push", body)
			Expect(err).NotTo(HaveOccurred())
			Expect(item.ActionCreated).To(Equal(time.Unix(1714557600, 0).UTC()))
		})

		It("reads issues from the issue object", func() {
			body := []byte(`{
				"action": "opened",
				"issue": {"id": 7, "url": "https://api.github.com/repos/o/r/issues/1", "created_at": "2024-05-01T09:00:00Z", "state": "open"},
				"repository": {"id": 42, "name": "r"}
			}`)

			item, err := m.Map("issues", body)
			Expect(err).NotTo(HaveOccurred())
			Expect(item.ID).To(Equal("7"))
			Expect(item.Link).To(Equal("https://api.github.com/repos/o/r/issues/1"))
			Expect(item.Meta).To(Equal(map[string]any{"state": "open"}))
		})

		It("projects pull request ownership and title", func() {
			body := []byte(`{
				"action": "closed",
				"pull_request": {"id": 9, "url": "u", "created_at": "2024-05-01T09:00:00Z", "author_association": "OWNER", "title": "Fix"},
				"repository": {"id": 42, "name": "r"}
			}`)

			item, err := m.Map("pull_request", body)
			Expect(err).NotTo(HaveOccurred())
			Expect(item.Meta).To(Equal(map[string]any{"owner": true, "title": "Fix"}))
		})

		It("projects deployment environment fields", func() {
			body := []byte(`{
				"action": "created",
				"deployment": {"id": 3, "url": "u", "created_at": "2024-05-01T09:00:00Z", "environment": "production", "original_environment": "staging", "ref": "main"},
				"repository": {"id": 42, "name": "r"}
			}`)

			item, err := m.Map("deployment", body)
			Expect(err).NotTo(HaveOccurred())
			Expect(item.Meta).To(Equal(map[string]any{
				"environment":          "production",
				"original_environment": "staging",
				"ref":                  "main",
			}))
		})

		It("keeps release prerelease as a boolean", func() {
			body := []byte(`{
				"action": "published",
				"release": {"id": 11, "url": "u", "created_at": "2024-05-01T09:00:00Z", "prerelease": false},
				"repository": {"id": 42, "name": "r"}
			}`)

			item, err := m.Map("release", body)
			Expect(err).NotTo(HaveOccurred())
			Expect(item.Meta).To(Equal(map[string]any{"prerelease": false}))
		})

		It("maps packages with the version link", func() {
			body := []byte(`{
				"action": "published",
				"package": {
					"id": 5, "name": "lib", "package_type": "npm", "created_at": "2024-05-01T09:00:00Z",
					"html_url": "https://github.com/o/r/packages/5",
					"package_version": {"version": "1.2.0", "html_url": "https://github.com/o/r/packages/5?version=1.2.0"}
				},
				"repository": {"id": 42, "name": "r"}
			}`)

			item, err := m.Map("package", body)
			Expect(err).NotTo(HaveOccurred())
			Expect(item.ID).To(Equal("5"))
			Expect(item.Link).To(Equal("https://github.com/o/r/packages/5?version=1.2.0"))
			Expect(item.Meta).To(Equal(map[string]any{"name": "lib", "package_type": "npm", "version": "1.2.0"}))
		})

		It("falls back to the package link without a version link", func() {
			body := []byte(`{
				"package": {"id": 5, "name": "lib", "package_type": "npm", "html_url": "https://github.com/o/r/packages/5"},
				"repository": {"id": 42, "name": "r"}
			}`)

			item, err := m.Map("package", body)
			Expect(err).NotTo(HaveOccurred())
			Expect(item.Link).To(Equal("https://github.com/o/r/packages/5"))
			Expect(item.Meta["version"]).To(BeNil())
		})

		It("rejects events outside the allow-list", func() {
			_, err := m.Map("watch", []byte(`{}`))
			Expect(err).To(MatchError(mapper.ErrUnsupportedEvent))
		})

		It("rejects payloads without an action id", func() {
			_, err := m.Map("release", []byte(`{"release": {}}`))
			Expect(err).To(HaveOccurred())
		})

		It("rejects invalid json", func() {
			_, err := m.Map("push", []byte(`{"head_commit":`))
			Expect(err).To(HaveOccurred())
		})
	})
})
