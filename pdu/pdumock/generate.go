package pdumock

//go:generate mockgen -destination=mock_pdu.go -package=pdumock github.com/hakoniwalab/hakoniwa-pdu-rpc/pdu Endpoint,TimeSource
