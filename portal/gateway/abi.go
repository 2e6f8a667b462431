package gateway

// ABI fragments for the two deployed contracts, limited to the surface the
// portal uses. Embedding them keeps the binary self-contained; the addresses
// come from the contract manifest.

const defiABI = `[
  {"type":"function","name":"buyDex","stateMutability":"payable","inputs":[],"outputs":[]},
  {"type":"function","name":"sellDex","stateMutability":"nonpayable","inputs":[{"name":"dexAmount","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"loan","stateMutability":"nonpayable","inputs":[{"name":"dexAmount","type":"uint256"},{"name":"deadline","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"makePayment","stateMutability":"payable","inputs":[{"name":"loanId","type":"uint256"},{"name":"amount","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"terminateLoan","stateMutability":"payable","inputs":[{"name":"loanId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"getValueToTerminateLoan","stateMutability":"view","inputs":[{"name":"loanId","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"checkLoan","stateMutability":"nonpayable","inputs":[{"name":"loanId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"makeLoanRequestByNft","stateMutability":"nonpayable","inputs":[{"name":"nftContract","type":"address"},{"name":"nftId","type":"uint256"},{"name":"loanAmount","type":"uint256"},{"name":"deadline","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"cancelLoanRequestByNft","stateMutability":"nonpayable","inputs":[{"name":"nftContract","type":"address"},{"name":"nftId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"loanByNft","stateMutability":"payable","inputs":[{"name":"nftContract","type":"address"},{"name":"nftId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"setRateEthToDex","stateMutability":"nonpayable","inputs":[{"name":"rate","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"rateEthToDex","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"loanCount","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"getLoanDetails","stateMutability":"view","inputs":[{"name":"index","type":"uint256"}],"outputs":[
    {"name":"loanId","type":"uint256"},
    {"name":"deadline","type":"uint256"},
    {"name":"amount","type":"uint256"},
    {"name":"lender","type":"address"},
    {"name":"borrower","type":"address"},
    {"name":"active","type":"bool"},
    {"name":"numberOfPayments","type":"uint256"},
    {"name":"startTime","type":"uint256"},
    {"name":"isBasedOnNft","type":"bool"},
    {"name":"nftContract","type":"address"},
    {"name":"nftId","type":"uint256"}]},
  {"type":"function","name":"getBalance","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"getDexBalance","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"getTotalBorrowedAndNotPaidBackEth","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"event","name":"loanCreated","inputs":[
    {"name":"borrower","type":"address","indexed":true},
    {"name":"amount","type":"uint256","indexed":false},
    {"name":"deadline","type":"uint256","indexed":false},
    {"name":"loanId","type":"uint256","indexed":false}],"anonymous":false}
]`

const nftABI = `[
  {"type":"function","name":"mint","stateMutability":"payable","inputs":[{"name":"uri","type":"string"}],"outputs":[]},
  {"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"tokenId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"ownerOf","stateMutability":"view","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"","type":"address"}]},
  {"type":"function","name":"tokenURI","stateMutability":"view","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"","type":"string"}]},
  {"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"tokenOfOwnerByIndex","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"index","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"event","name":"Transfer","inputs":[
    {"name":"from","type":"address","indexed":true},
    {"name":"to","type":"address","indexed":true},
    {"name":"tokenId","type":"uint256","indexed":true}],"anonymous":false}
]`
