package execution

//go:generate mockgen -destination=mock_knode_test.go -package=execution github.com/birdayz/kflow/knode Processor
