package main

import (
	"fmt"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/lvoz2/weblib/search"
	"github.com/lvoz2/weblib/search/sources"
	"github.com/lvoz2/weblib/server"
	"github.com/lvoz2/weblib/server/middlewares"
	"github.com/lvoz2/weblib/store"
	"github.com/lvoz2/weblib/utils"
	"github.com/lvoz2/weblib/utils/dotenv"
	Flag "github.com/lvoz2/weblib/utils/flag"
	Logger "github.com/lvoz2/weblib/utils/log"
)

func main() {
	Flag.Parse()

	if err := dotenv.LoadDotEnvs(); err != nil {
		panic(err)
	}
	Logger.InitLogger()

	db, err := utils.GetDBConnection()
	if err != nil {
		Logger.Log.Fatalln("cannot connect to DB:", err)
	}
	utils.DatabaseSetupAndMigration(db)

	items := store.NewItemStore(db)
	users := store.NewUserStore(db)
	recency := store.NewRecencyLedger(db)
	orchestrator := search.NewOrchestrator(
		sources.NewWikipedia(items),
		sources.NewGoogleBooks(items),
	)

	// Default With the Logger and Recovery middleware already attached
	router := gin.Default()

	router.Use(cors.Default())
	router.Use(middlewares.RequestId())
	router.Use(middlewares.Viewer())

	server.NewAPI(items, users, recency, orchestrator).Register(router)

	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	// Static assets plus the landing page with SRI hashes injected. The
	// session/templating front end owns everything richer than this.
	sri, err := server.NewSRIRewriter(".", "sha512")
	if err != nil {
		Logger.Log.Fatalln("cannot set up SRI rewriting:", err)
	}
	router.Static("/static", "./static")
	router.GET("/", sri.ServePage("static/index.html"))

	Logger.Log.Info("api server starts up")
	router.Run(fmt.Sprintf(":%d", Flag.Port))
}
