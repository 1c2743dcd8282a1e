package models

// Event kinds used by the auction marketplace
const (
	KindAuctionListing  = 30020 // replaceable, keyed by the stable auction id ("d" tag)
	KindBid             = 1021
	KindBidConfirmation = 1022
	KindStatusUpdate    = 1023
	KindEncryptedDM     = 4
	KindReaction        = 7
	KindComment         = 1111
)
