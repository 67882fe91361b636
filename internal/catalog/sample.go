package catalog

import (
	"context"

	"github.com/egv/autotask/internal/contracts"
)

// StaticSource serves a fixed in-memory catalog. Each load returns a fresh
// copy so callers cannot alter the source.
type StaticSource struct {
	catalog contracts.Catalog
}

var _ contracts.CatalogSource = (*StaticSource)(nil)

func NewStaticSource(catalog contracts.Catalog) *StaticSource {
	return &StaticSource{catalog: catalog.Clone()}
}

func (s *StaticSource) LoadCatalog(ctx context.Context) (contracts.Catalog, error) {
	if err := ctx.Err(); err != nil {
		return contracts.Catalog{}, err
	}
	if s == nil {
		return contracts.Catalog{}, contracts.ErrCatalogNotFound
	}
	return s.catalog.Clone(), nil
}

// Sample returns the development catalog: twelve tasks of a small web
// project and the relations between them.
func Sample() *StaticSource {
	return NewStaticSource(SampleCatalog())
}

func SampleCatalog() contracts.Catalog {
	return contracts.Catalog{
		Tasks:     sampleTasks(),
		Relations: sampleRelations(),
	}
}

func sampleTasks() []contracts.Task {
	return []contracts.Task{
		{
			ID:            "1",
			Name:          "Fix login page styling",
			Description:   "The login form renders incorrectly on mobile devices. Rework the responsive layout, in particular the spacing between inputs and buttons on small screens.",
			Image:         "node:18-alpine",
			Prerequisites: []string{},
			Script:        "#!/bin/bash\necho \"Fixing login page styles...\"\ncd /src/components/login\nnpm run fix:style\nnpm run test:visual",
		},
		{
			ID:            "2",
			Name:          "Implement user sign-up",
			Description:   "Add a sign-up page with email verification and password strength checks. Requires integrating the mail delivery service.",
			Image:         "node:18-alpine",
			Prerequisites: []string{"1"},
			Script:        "#!/bin/bash\necho \"Starting sign-up feature...\"\ncd /src/auth\nnpm install nodemailer\nnpm run dev",
		},
		{
			ID:            "3",
			Name:          "Optimize database queries",
			Description:   "The user list query responds too slowly. Add indexes and tune the SQL statements.",
			Image:         "mysql:8.0",
			Prerequisites: []string{},
			Script:        "#!/bin/bash\necho \"Optimizing queries...\"\nmysql -u root -p < optimize_queries.sql\necho \"Indexes added\"",
		},
		{
			ID:            "4",
			Name:          "Update project documentation",
			Description:   "Fill in the API reference and refresh the deployment guide.",
			Image:         "node:18-alpine",
			Prerequisites: []string{"3"},
			Script:        "#!/bin/bash\necho \"Building docs...\"\nnpm run docs:build\nscp -r docs/dist server:/var/www/docs/",
		},
		{
			ID:            "5",
			Name:          "Integrate payment gateway",
			Description:   "Connect Alipay and WeChat Pay to support order payment, including payment callbacks and order status synchronization.",
			Image:         "node:18-alpine",
			Prerequisites: []string{"2", "3"},
			Script:        "#!/bin/bash\necho \"Configuring payment gateway...\"\nnpm install @alipay/sdk @wechat/pay\nnode scripts/setup-payment.js",
		},
		{
			ID:            "6",
			Name:          "Add unit tests",
			Description:   "Write unit tests for the core business logic, targeting at least 80% coverage.",
			Image:         "node:18-alpine",
			Prerequisites: []string{"5"},
			Script:        "#!/bin/bash\necho \"Running unit tests...\"\nnpm run test:unit -- --coverage\nif [ $? -eq 0 ]; then\n  echo \"Tests passed\"\nelse\n  echo \"Tests failed\"\n  exit 1\nfi",
		},
		{
			ID:            "7",
			Name:          "Fix memory leak",
			Description:   "Users report the system slowing down after running for a long time; profiling found a memory leak that needs fixing.",
			Image:         "node:18-alpine",
			Prerequisites: []string{},
			Script:        "#!/bin/bash\necho \"Profiling memory...\"\nnode --inspect scripts/memory-profile.js\nnpm run test:memory",
		},
		{
			ID:            "8",
			Name:          "Design new home page layout",
			Description:   "Redesign the home page per product requirements, adding a data overview panel and quick action shortcuts.",
			Image:         "nginx:alpine",
			Prerequisites: []string{"1"},
			Script:        "#!/bin/bash\necho \"Building home page...\"\nnpm run build:home\necho \"Deploying to preview...\"\n./deploy-preview.sh home",
		},
		{
			ID:            "9",
			Name:          "Implement file upload",
			Description:   "Support uploading images, documents and other formats, with file type checks and chunked upload for large files.",
			Image:         "node:18-alpine",
			Prerequisites: []string{"8"},
			Script:        "#!/bin/bash\necho \"Configuring uploads...\"\nmkdir -p /uploads/{images,documents}\nnpm install multer sharp\nnode scripts/setup-upload.js",
		},
		{
			ID:            "10",
			Name:          "Configure CI/CD pipeline",
			Description:   "Set up GitHub Actions for automated testing and deployment.",
			Image:         "docker:latest",
			Prerequisites: []string{"6", "7"},
			Script:        "#!/bin/bash\necho \"Deploying to production...\"\ndocker build -t app:latest .\ndocker push registry/app:latest\nkubectl rollout restart deployment/app",
		},
		{
			ID:            "11",
			Name:          "Speed up first paint",
			Description:   "Reduce initial load time with code splitting and lazy loading.",
			Image:         "node:18-alpine",
			Prerequisites: []string{"8"},
			Script:        "#!/bin/bash\necho \"Analyzing bundle size...\"\nnpm run analyze\nnpm run build:prod\necho \"Done\"",
		},
		{
			ID:            "12",
			Name:          "Add data export",
			Description:   "Support exporting report data to Excel and PDF.",
			Image:         "node:18-alpine",
			Prerequisites: []string{"9"},
			Script:        "#!/bin/bash\necho \"Installing export dependencies...\"\nnpm install xlsx pdfkit\nnpm run test:export\nnpm run build",
		},
	}
}

func sampleRelations() []contracts.TaskRelation {
	return []contracts.TaskRelation{
		{From: "2", To: "1", Type: contracts.RelationDependsOn},
		{From: "4", To: "3", Type: contracts.RelationDependsOn},
		{From: "5", To: "2", Type: contracts.RelationDependsOn},
		{From: "5", To: "3", Type: contracts.RelationDependsOn},
		{From: "6", To: "5", Type: contracts.RelationDependsOn},
		{From: "6", To: "5", Type: contracts.RelationCondition, Condition: "exit_code == 0"},
		{From: "8", To: "1", Type: contracts.RelationDependsOn},
		{From: "9", To: "8", Type: contracts.RelationDependsOn},
		{From: "9", To: "8", Type: contracts.RelationParallel},
		{From: "10", To: "6", Type: contracts.RelationDependsOn},
		{From: "10", To: "7", Type: contracts.RelationDependsOn},
		{From: "11", To: "8", Type: contracts.RelationDependsOn},
		{From: "11", To: "8", Type: contracts.RelationParallel},
		{From: "12", To: "9", Type: contracts.RelationDependsOn},
		{From: "12", To: "9", Type: contracts.RelationCondition, Condition: "upload_size > 0"},
	}
}
