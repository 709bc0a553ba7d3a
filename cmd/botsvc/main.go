// cmd/botsvc/main.go
package main

import (
	"context"
	"math/rand"
	"os"
	"time"

	config "github.com/abelt/coinflip-services/configs"
	"github.com/abelt/coinflip-services/internal/client"
	natscli "github.com/abelt/coinflip-services/internal/nats"
	"github.com/abelt/coinflip-services/internal/vault"
	log "github.com/sirupsen/logrus"
)

const SERVICE_NAME = "bot"

var instanceId string

func init() {
	instanceId = "001"
	config.Logging(SERVICE_NAME + "_service_" + instanceId)
	config.LoadEnv(SERVICE_NAME)
}

// Bot accounts play against each other to keep traffic on the engine
// and to exercise the full protocol path end to end.
var botAccounts = []string{
	"bot-abelo", "bot-meron", "bot-dawit", "bot-liya", "bot-yonas",
}

// Bet sizes in nano units.
var betAmounts = []int64{1000000000, 2000000000, 5000000000}

func main() {
	n, err := natscli.Connect(SERVICE_NAME + "_service_" + instanceId)
	if err != nil {
		log.Errorf("Error: unable to connect to NATS server %v", err)
		os.Exit(0)
	}
	defer n.Conn.Close()
	log.Printf("NATS connection established successfully %s", n.Url)

	vaultDir := os.Getenv("BOT_VAULT_DIR")
	if vaultDir == "" {
		vaultDir = ".bot_vault"
	}
	v, err := vault.OpenBadger(vaultDir)
	if err != nil {
		log.Fatalf("Failed to open bot vault: %v", err)
	}
	defer v.Close()

	cfg := client.Config{
		TargetAccount: os.Getenv("FLIP_ACCOUNT"),
	}
	c := client.New(cfg, v, client.NewNatsSubmitter(n.Conn))

	for {
		playRound(c)
		time.Sleep(time.Duration(10+rand.Intn(20)) * time.Second)
	}
}

// playRound runs one full match between two random bot accounts:
// create, join, both reveal. One in ten created matches is cancelled
// instead of joined, to keep the cancel path exercised too.
func playRound(c *client.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	creator := client.Session{Account: botAccounts[rand.Intn(len(botAccounts))]}
	joiner := client.Session{Account: botAccounts[rand.Intn(len(botAccounts))]}
	for joiner.Account == creator.Account {
		joiner.Account = botAccounts[rand.Intn(len(botAccounts))]
	}
	bet := betAmounts[rand.Intn(len(betAmounts))]

	created, err := c.CreateMatch(ctx, creator, bet)
	if err != nil {
		log.Errorf("Error [CreateMatch] %s", err)
		return
	}
	if !created.Accepted {
		log.Warnf("create rejected (%s): %s", created.Code, created.Error)
		return
	}
	matchID := created.MatchID
	log.Infof("bot %s created match %d bet %d", creator.Account, matchID, bet)

	if rand.Intn(10) == 0 {
		res, err := c.Cancel(ctx, creator, matchID)
		if err != nil {
			log.Errorf("Error [Cancel] %s", err)
			return
		}
		log.Infof("bot %s cancelled match %d accepted=%v", creator.Account, matchID, res.Accepted)
		return
	}

	joined, err := c.JoinMatch(ctx, joiner, matchID, bet)
	if err != nil {
		log.Errorf("Error [JoinMatch] %s", err)
		return
	}
	if !joined.Accepted {
		log.Warnf("join rejected (%s): %s", joined.Code, joined.Error)
		return
	}
	log.Infof("bot %s joined match %d", joiner.Account, matchID)

	for _, sess := range []client.Session{creator, joiner} {
		res, err := c.Reveal(ctx, sess, matchID)
		if err != nil {
			log.Errorf("Error [Reveal] by %s: %s", sess.Account, err)
			return
		}
		if !res.Accepted {
			log.Warnf("reveal by %s rejected (%s): %s", sess.Account, res.Code, res.Error)
			return
		}
		log.Infof("bot %s revealed match %d status=%s", sess.Account, matchID, res.Status)
	}
}
