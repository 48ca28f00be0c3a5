// 写入演示数据：教师、学生、作业、个人作业及 base 题，并输出学生的测试 token
//
// 重复执行是安全的：已存在的用户和个人作业会被复用。
//
// 用法: go run scripts/seed_demo.go -file scripts/demo_seed.yaml

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"recall_edu_backend/internal/cache"
	"recall_edu_backend/internal/config"
	"recall_edu_backend/internal/model"
	"recall_edu_backend/internal/repository"
	"recall_edu_backend/internal/service"
	"recall_edu_backend/internal/util"
	"recall_edu_backend/pkg/database"
	"recall_edu_backend/pkg/logger"

	"gopkg.in/yaml.v3"
)

type seedUser struct {
	Name     string `yaml:"name"`
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}

type seedFile struct {
	Teacher    seedUser   `yaml:"teacher"`
	Students   []seedUser `yaml:"students"`
	Assignment struct {
		Title   string `yaml:"title"`
		Subject string `yaml:"subject"`
	} `yaml:"assignment"`
	Questions []struct {
		Content     string `yaml:"content"`
		ModelAnswer string `yaml:"model_answer"`
		Explanation string `yaml:"explanation"`
		Difficulty  string `yaml:"difficulty"`
	} `yaml:"questions"`
}

func main() {
	file := flag.String("file", "scripts/demo_seed.yaml", "演示数据文件")
	flag.Parse()

	data, err := os.ReadFile(*file)
	if err != nil {
		log.Fatalf("无法读取演示数据: %v", err)
	}
	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		log.Fatalf("解析演示数据失败: %v", err)
	}

	cfg, err := config.LoadConfig("configs")
	if err != nil {
		log.Fatalf("无法读取配置文件: %v", err)
	}
	logger.InitLogger(cfg)

	db, err := database.InitDB(&cfg.Database, cfg.Server.Mode)
	if err != nil {
		log.Fatalf("数据库连接失败: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("数据库迁移失败: %v", err)
	}

	ctx := context.Background()
	users := repository.NewUserRepository(db)
	assignments := repository.NewPersonalAssignmentRepository(db)
	paService := service.NewPersonalAssignmentService(
		db,
		assignments,
		repository.NewQuestionRepository(db),
		repository.NewAnswerRepository(db),
		nil,
		cache.NewNextQuestionCache(nil, 0),
	)

	teacher := ensureUser(ctx, users, seed.Teacher, model.Teacher)

	assignment := &model.Assignment{
		Title:     seed.Assignment.Title,
		Subject:   seed.Assignment.Subject,
		TeacherID: teacher.ID,
	}
	if err := assignments.CreateAssignment(ctx, assignment); err != nil {
		log.Fatalf("创建作业失败: %v", err)
	}

	for _, s := range seed.Students {
		student := ensureUser(ctx, users, s, model.Student)

		questions := make([]model.Question, 0, len(seed.Questions))
		for _, q := range seed.Questions {
			questions = append(questions, model.Question{
				Content:     q.Content,
				ModelAnswer: q.ModelAnswer,
				Explanation: q.Explanation,
				Difficulty:  model.Difficulty(q.Difficulty),
			})
		}

		pa, err := paService.Issue(ctx, student.ID, assignment.ID, questions)
		if err != nil {
			log.Fatalf("下发个人作业失败: %v", err)
		}

		token, err := util.IssueAccessToken(student, cfg.JWT.Secret, cfg.JWT.ExpireTime)
		if err != nil {
			log.Fatalf("生成 token 失败: %v", err)
		}
		fmt.Printf("%s\tpersonal_assignment=%d\ttoken=%s\n", student.Email, pa.ID, token)
	}

	log.Println("完成！")
}

func ensureUser(ctx context.Context, users *repository.UserRepository, u seedUser, role model.UserRole) *model.User {
	existing, err := users.FindByEmail(ctx, u.Email)
	if err != nil {
		log.Fatalf("查询用户失败: %v", err)
	}
	if existing != nil {
		return existing
	}

	user := &model.User{Name: u.Name, Email: u.Email, Role: role}
	if u.Password != "" {
		hashed, err := service.HashPassword(u.Password)
		if err != nil {
			log.Fatalf("密码加密失败: %v", err)
		}
		user.Password = hashed
	}
	if err := users.Create(ctx, user); err != nil {
		log.Fatalf("创建用户失败: %v", err)
	}
	return user
}
