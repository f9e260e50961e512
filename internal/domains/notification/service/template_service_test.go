package service

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notification-backend/internal/domains/notification/model"
)

// fakeTemplateRepo keeps every version in memory and mirrors the
// one-active-version-per-name rule.
type fakeTemplateRepo struct {
	mu       sync.Mutex
	versions map[string][]*model.Template
	reads    int
}

func newFakeTemplateRepo() *fakeTemplateRepo {
	return &fakeTemplateRepo{versions: make(map[string][]*model.Template)}
}

func (f *fakeTemplateRepo) Create(_ context.Context, template *model.Template) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *template
	f.versions[template.Name] = append(f.versions[template.Name], &copied)
	return nil
}

func (f *fakeTemplateRepo) GetByID(_ context.Context, id uuid.UUID) (*model.Template, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, versions := range f.versions {
		for _, template := range versions {
			if template.ID == id {
				copied := *template
				return &copied, nil
			}
		}
	}
	return nil, model.ErrTemplateNotFound
}

func (f *fakeTemplateRepo) GetActiveByName(_ context.Context, name string) (*model.Template, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	for _, template := range f.versions[name] {
		if template.Active && !template.Deleted {
			copied := *template
			return &copied, nil
		}
	}
	return nil, model.ErrTemplateNotFound
}

func (f *fakeTemplateRepo) List(context.Context, *model.Channel, *model.TemplateCategory, int, int) ([]*model.Template, int64, error) {
	return nil, 0, nil
}

func (f *fakeTemplateRepo) ListVersions(_ context.Context, name string) ([]*model.Template, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*model.Template, 0, len(f.versions[name]))
	for _, template := range f.versions[name] {
		copied := *template
		out = append(out, &copied)
	}
	return out, nil
}

func (f *fakeTemplateRepo) CreateNewVersion(_ context.Context, next *model.Template) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	maxVersion := 0
	for _, template := range f.versions[next.Name] {
		template.Active = false
		if template.Version > maxVersion {
			maxVersion = template.Version
		}
	}
	copied := *next
	copied.Version = maxVersion + 1
	copied.Active = true
	f.versions[next.Name] = append(f.versions[next.Name], &copied)
	*next = copied
	return nil
}

func (f *fakeTemplateRepo) SetActive(_ context.Context, id uuid.UUID, active bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, versions := range f.versions {
		for _, template := range versions {
			if template.ID == id {
				template.Active = active
				return nil
			}
		}
	}
	return model.ErrTemplateNotFound
}

func (f *fakeTemplateRepo) SoftDelete(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, template := range f.versions[name] {
		template.Deleted = true
		template.Active = false
	}
	return nil
}

func (f *fakeTemplateRepo) ExistsByName(_ context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.versions[name]) > 0, nil
}

func createRequest() *model.CreateTemplateRequest {
	return &model.CreateTemplateRequest{
		Name:            "order_execution_alert",
		DisplayName:     "Order Executed",
		Channel:         "EMAIL",
		Category:        "TRADING",
		SubjectTemplate: "Order {{orderId}} filled",
		ContentTemplate: "{{quantity}} {{symbol}} at {{fillPrice}}",
	}
}

func TestTemplateCreate(t *testing.T) {
	svc := NewTemplateService(newFakeTemplateRepo())

	template, err := svc.Create(context.Background(), createRequest(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, template.Version)
	assert.True(t, template.Active)
	assert.Equal(t, model.PriorityMedium, template.DefaultPriority)

	_, err = svc.Create(context.Background(), createRequest(), nil)
	assert.ErrorIs(t, err, model.ErrTemplateNameExists)
}

func TestTemplateUpdateCreatesNewActiveVersion(t *testing.T) {
	repo := newFakeTemplateRepo()
	svc := NewTemplateService(repo)
	ctx := context.Background()

	_, err := svc.Create(ctx, createRequest(), nil)
	require.NoError(t, err)

	content := "Filled: {{quantity}} {{symbol}}"
	next, err := svc.Update(ctx, "order_execution_alert",
		&model.UpdateTemplateRequest{ContentTemplate: &content}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, next.Version)
	assert.Equal(t, content, next.ContentTemplate)
	assert.Equal(t, "Order {{orderId}} filled", next.SubjectTemplate,
		"unset fields inherit from the prior version")

	versions, err := svc.ListVersions(ctx, "order_execution_alert")
	require.NoError(t, err)
	require.Len(t, versions, 2)

	active := 0
	for _, version := range versions {
		if version.Active {
			active++
		}
	}
	assert.Equal(t, 1, active, "exactly one version stays active")
}

func TestTemplateGetByNameCaches(t *testing.T) {
	repo := newFakeTemplateRepo()
	svc := NewTemplateService(repo)
	ctx := context.Background()

	_, err := svc.Create(ctx, createRequest(), nil)
	require.NoError(t, err)

	_, err = svc.GetByName(ctx, "order_execution_alert")
	require.NoError(t, err)
	_, err = svc.GetByName(ctx, "order_execution_alert")
	require.NoError(t, err)
	assert.Equal(t, 1, repo.reads, "the second read is served from cache")
}

func TestTemplateUpdateInvalidatesCache(t *testing.T) {
	repo := newFakeTemplateRepo()
	svc := NewTemplateService(repo)
	ctx := context.Background()

	_, err := svc.Create(ctx, createRequest(), nil)
	require.NoError(t, err)
	_, err = svc.GetByName(ctx, "order_execution_alert")
	require.NoError(t, err)

	content := "updated"
	_, err = svc.Update(ctx, "order_execution_alert",
		&model.UpdateTemplateRequest{ContentTemplate: &content}, nil)
	require.NoError(t, err)

	fresh, err := svc.GetByName(ctx, "order_execution_alert")
	require.NoError(t, err)
	assert.Equal(t, 2, fresh.Version)
}

func TestTemplateRender(t *testing.T) {
	svc := NewTemplateService(newFakeTemplateRepo())
	ctx := context.Background()

	_, err := svc.Create(ctx, createRequest(), nil)
	require.NoError(t, err)

	msg, err := svc.Render(ctx, "order_execution_alert", map[string]interface{}{
		"orderId":   "ord-1",
		"quantity":  "10",
		"symbol":    "AAPL",
		"fillPrice": "101.5",
	})
	require.NoError(t, err)
	assert.Equal(t, "Order ord-1 filled", msg.Subject)
	assert.Equal(t, "10 AAPL at 101.5", msg.Content)
	assert.Equal(t, model.ChannelEmail, msg.Channel)
	assert.Equal(t, model.CategoryTrading, msg.Category)
}

func TestTemplateRenderRejectsDeleted(t *testing.T) {
	svc := NewTemplateService(newFakeTemplateRepo())
	ctx := context.Background()

	_, err := svc.Create(ctx, createRequest(), nil)
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, "order_execution_alert"))

	_, err = svc.Render(ctx, "order_execution_alert", nil)
	assert.ErrorIs(t, err, model.ErrTemplateNotFound)
}
