package connector

// WalletTag identifies a wallet product independent of how it is reached.
type WalletTag string

const (
	WalletMetaMask      WalletTag = "metamask"
	WalletCoinbase      WalletTag = "coinbase"
	WalletTrust         WalletTag = "trust"
	WalletRainbow       WalletTag = "rainbow"
	WalletZerion        WalletTag = "zerion"
	WalletExodus        WalletTag = "exodus"
	WalletFrame         WalletTag = "frame"
	WalletWalletConnect WalletTag = "walletconnect"
	WalletLocal         WalletTag = "local"
)

// Display is how a wallet is presented to the user.
type Display struct {
	Name string
	Icon string
}

// FallbackDisplay is used for wallets without an entry in the display table.
var FallbackDisplay = Display{Name: "Wallet", Icon: "/wallet.svg"}

var displays = map[WalletTag]Display{
	WalletMetaMask:      {Name: "MetaMask", Icon: "/metamask.svg"},
	WalletCoinbase:      {Name: "Coinbase Wallet", Icon: "/coinbase.svg"},
	WalletTrust:         {Name: "Trust Wallet", Icon: "/trust.svg"},
	WalletRainbow:       {Name: "Rainbow", Icon: "/rainbow.svg"},
	WalletZerion:        {Name: "Zerion", Icon: "/zerion.svg"},
	WalletExodus:        {Name: "Exodus", Icon: "/exodus.svg"},
	WalletFrame:         {Name: "Frame", Icon: "/frame.svg"},
	WalletWalletConnect: {Name: "WalletConnect", Icon: "/walletconnect.svg"},
	WalletLocal:         {Name: "Local Key", Icon: "/key.svg"},
}

// DisplayFor returns the display metadata for tag.
func DisplayFor(tag WalletTag) Display {
	if d, ok := displays[tag]; ok {
		return d
	}
	return FallbackDisplay
}

// Suggestion is an installable wallet offered when it is not present.
type Suggestion struct {
	Wallet      WalletTag
	Name        string
	DownloadURL string
}

var suggestions = []Suggestion{
	{Wallet: WalletMetaMask, Name: "MetaMask", DownloadURL: "https://metamask.io/download/"},
	{Wallet: WalletCoinbase, Name: "Coinbase Wallet", DownloadURL: "https://www.coinbase.com/wallet/downloads"},
	{Wallet: WalletTrust, Name: "Trust Wallet", DownloadURL: "https://trustwallet.com/download"},
	{Wallet: WalletRainbow, Name: "Rainbow", DownloadURL: "https://rainbow.me/download"},
	{Wallet: WalletZerion, Name: "Zerion", DownloadURL: "https://zerion.io/download"},
	{Wallet: WalletExodus, Name: "Exodus", DownloadURL: "https://www.exodus.com/download/"},
}
