package processors

//go:generate mockgen -destination=mock_knode_test.go -package=processors github.com/birdayz/kflow/knode Forwarder
