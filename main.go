package main

import (
	"context"
	"printflow/account"
	"printflow/client/es"
	"printflow/common"
	"printflow/config"
	"printflow/domain/option"
	"printflow/domain/permission"
	"printflow/domain/work"
	"printflow/domain/work/workrest"
	"printflow/indices"
	"printflow/indices/indexlog"
	"printflow/infra/metrics"
	"printflow/infra/tracing"
	"printflow/movement"
	"printflow/persistence"
	"printflow/servehttp"
	"printflow/session"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("load config failed %v", err)
	}
	common.ConfigureLogging(cfg.Log)
	gin.SetMode(cfg.Server.Mode)
	logrus.Info("service start")

	closer, err := tracing.InitTracer(cfg.Tracing.Enabled, metrics.Registry)
	if err != nil {
		logrus.Fatalf("init tracer failed %v", err)
	}
	defer closer.Close()

	session.ConfigureTokens(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenExpiry)

	dbConfig, err := persistence.NewDatabaseConfig(cfg.Database.Driver, cfg.Database.Args)
	if err != nil {
		logrus.Fatalf("parse database config failed %v", err)
	}
	// create database (no conflict)
	if dbConfig.DriverType == persistence.DriverMysql {
		if err := persistence.PrepareMysqlDatabase(dbConfig.DriverArgs); err != nil {
			logrus.Fatalf("failed to prepare database %v", err)
		}
	}

	// connect database
	ds := &persistence.DataSourceManager{DatabaseConfig: dbConfig}
	if err := ds.Start(); err != nil {
		logrus.Fatalf("database conneciton failed %v", err)
	}
	defer ds.Stop()
	persistence.ActiveDataSourceManager = ds

	if err := migrate(ds); err != nil {
		logrus.Fatalf("database migration failed %v", err)
	}
	if err := account.EnsureAdminAccount(cfg.Auth.AdminPassword); err != nil {
		logrus.Fatalf("failed to ensure admin account %v", err)
	}

	// cross module hooks
	account.LoadUserRoleIDsFunc = permission.LoadUserRoleIDs
	session.LoadUserStateFunc = account.LoadUserState
	account.UserDeletionCleaners = append(account.UserDeletionCleaners, permission.DetachUser, movement.DetachUser, work.DetachUser)
	option.DeletionCleaners = append(option.DeletionCleaners, work.DetachOption)
	movement.MovementHandlers = append(movement.MovementHandlers, indices.IndexWorkMovementHandle)
	work.PriorityShiftHandlers = append(work.PriorityShiftHandlers, indices.ReindexShiftedWorks)

	if cfg.Search.ElasticsearchURL != "" {
		if _, err := es.CreateClient(cfg.Search.ElasticsearchURL); err != nil {
			logrus.Fatalf("failed to create elasticsearch client %v", err)
		}
		indices.WorkIndexName = cfg.Search.IndexName
		c, err := indices.StartCron(cfg.Search.SyncCron)
		if err != nil {
			logrus.Fatalf("failed to start index cron %v", err)
		}
		defer c.Stop()
	} else {
		logrus.Warn("elasticsearch url is not configured, work search falls back to database queries")
	}

	engine := servehttp.NewEngine(cfg.Server.CorsAllowedOrigins, metrics.Default)
	metrics.RegisterMetricsEndpoint(engine, metrics.Registry)

	account.RegisterSessionsRestAPI(engine)
	account.RegisterUsersRestAPI(engine, session.SimpleAuthFilter())
	permission.RegisterPermissionsRestAPI(engine, session.SimpleAuthFilter())
	option.RegisterOptionsRestAPI(engine, session.SimpleAuthFilter())
	workrest.RegisterWorksRestAPI(engine, session.SimpleAuthFilter())
	movement.RegisterMovementsRestAPI(engine, session.SimpleAuthFilter())
	indices.RegisterIndicesRestAPI(engine, session.SimpleAuthFilter())

	servehttp.StartHTTPServer(engine, cfg.Server.Port)
}

func migrate(ds *persistence.DataSourceManager) error {
	db := ds.GormDB(context.Background())
	if err := db.AutoMigrate(&account.User{}, &permission.Role{}, &permission.ColumnPermission{},
		&permission.SystemPermission{}, &permission.UserRole{}, &movement.Movement{}).Error; err != nil {
		return err
	}
	if err := option.Migrate(db); err != nil {
		return err
	}
	if err := work.Migrate(db); err != nil {
		return err
	}
	return indexlog.Migrate(db)
}
